package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imrestore/pkg/restoration"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "db1", cfg.Wavelet.Wavelet)
	assert.Equal(t, string(restoration.BayesShrink), cfg.Wavelet.Method)
	assert.Equal(t, string(restoration.Soft), cfg.Wavelet.Mode)
	require.NotNil(t, cfg.Wavelet.RescaleSigma)
	assert.True(t, *cfg.Wavelet.RescaleSigma)

	assert.Equal(t, 0.1, cfg.TVChambolle.Weight)
	assert.Equal(t, 200, cfg.TVChambolle.MaxIter)
	assert.Equal(t, 7, cfg.NLMeans.PatchSize)
	assert.Equal(t, 11, cfg.NLMeans.PatchDistance)
	assert.Equal(t, Denoisers, cfg.Bench.Denoisers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should give defaults (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Wavelet.Wavelet = "sym4"
	cfg.Wavelet.Sigma = []float64{0.1, 0.2, 0.3}
	cfg.Wavelet.RescaleSigma = new(bool)
	cfg.CycleSpin.Enabled = true
	cfg.CycleSpin.MaxShifts = []int{2, 3}
	cfg.Bench.Denoisers = []string{DenoiserTV, DenoiserNLMeans}

	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip changed the config (-want +got):\n%s", diff)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "wavelet:\n  wavelet: db2\n  mode: hard\nbench:\n  rows: 64\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db2", cfg.Wavelet.Wavelet)
	assert.Equal(t, "hard", cfg.Wavelet.Mode)
	assert.Equal(t, string(restoration.BayesShrink), cfg.Wavelet.Method)
	assert.Equal(t, 64, cfg.Bench.Rows)
	assert.Equal(t, 128, cfg.Bench.Cols)
	assert.Nil(t, cfg.Wavelet.RescaleSigma, "an omitted rescaleSigma must stay unset")
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wavelet: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Wavelet.RescaleSigma)
	assert.True(t, *cfg.Wavelet.RescaleSigma)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown wavelet", func(c *Config) { c.Wavelet.Wavelet = "db99" }},
		{"empty image", func(c *Config) { c.Bench.Rows = 0 }},
		{"negative noise", func(c *Config) { c.Bench.NoiseSigma = -0.1 }},
		{"no denoisers", func(c *Config) { c.Bench.Denoisers = nil }},
		{"unknown denoiser", func(c *Config) { c.Bench.Denoisers = []string{"tv", "median"} }},
		{"no shifts", func(c *Config) { c.CycleSpin.MaxShifts = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestWaveletOptionsRescale(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Wavelet.RescaleSigma = new(bool)
		rec := &restoration.Recorder{}

		opts, rescale := cfg.WaveletOptions(true, rec)
		assert.False(t, rescale)
		assert.True(t, opts.Multichannel)
		assert.Equal(t, restoration.Reporter(rec), opts.Reporter)
		assert.Empty(t, rec.Warnings())
	})

	t.Run("implicit", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Wavelet.RescaleSigma = nil
		rec := &restoration.Recorder{}

		_, rescale := cfg.WaveletOptions(false, rec)
		assert.True(t, rescale)
		assert.True(t, rec.Has(restoration.WarnImplicitRescale))
	})
}

func TestCycleSpinOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CycleSpin.MaxShifts = []int{2}
	cfg.CycleSpin.ShiftSteps = []int{1, 2}
	cfg.CycleSpin.NumWorkers = 3

	opts := cfg.CycleSpinOptions(true)
	assert.Equal(t, restoration.Uniform(2).String(), opts.MaxShifts.String())
	assert.Equal(t, restoration.PerAxis(1, 2).String(), opts.ShiftSteps.String())
	assert.Equal(t, 3, opts.NumWorkers)
	assert.True(t, opts.Multichannel)
}

func TestDenoiserOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bilateral.SigmaColor = new(float64)
	*cfg.Bilateral.SigmaColor = 0.05

	tv := cfg.TVChambolleOptions(false)
	assert.Equal(t, restoration.DefaultTVChambolleOptions(), tv)

	bregman := cfg.TVBregmanOptions(false)
	assert.Equal(t, restoration.DefaultTVBregmanOptions(), bregman)

	bilateral := cfg.BilateralOptions(true, nil)
	require.NotNil(t, bilateral.SigmaColor)
	assert.Equal(t, 0.05, *bilateral.SigmaColor)
	assert.True(t, bilateral.Multichannel)

	nlm := cfg.NLMeansOptions(false)
	assert.Equal(t, restoration.DefaultNLMeansOptions(), nlm)
}
