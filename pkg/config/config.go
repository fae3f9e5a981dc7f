// Package config provides configuration loading and management for
// denoisebench. It handles loading configuration from YAML files, provides
// default values and converts sections into denoiser options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"imrestore/pkg/restoration"
	"imrestore/pkg/wavelet"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Denoiser names accepted in Bench.Denoisers.
const (
	DenoiserWavelet   = "wavelet"
	DenoiserTV        = "tv"
	DenoiserBregman   = "bregman"
	DenoiserBilateral = "bilateral"
	DenoiserNLMeans   = "nlmeans"
)

// Denoisers lists every known denoiser name.
var Denoisers = []string{DenoiserWavelet, DenoiserTV, DenoiserBregman, DenoiserBilateral, DenoiserNLMeans}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Wavelet thresholding parameters
	Wavelet struct {
		// Wavelet is the filter bank name (haar, db1-db4, sym2-sym4, bior1.1, bior2.2)
		Wavelet string `yaml:"wavelet"`

		// Method is BayesShrink, VisuShrink or empty for an explicit threshold
		Method string `yaml:"method"`

		// Mode is soft, hard or garrote
		Mode string `yaml:"mode"`

		// Levels is the decomposition depth; omit for three short of the deepest possible
		Levels *int `yaml:"levels,omitempty"`

		// Sigma is the noise level, one value or one per channel; omit to estimate
		Sigma []float64 `yaml:"sigma,omitempty"`

		// Threshold is used when Method is empty
		Threshold *float64 `yaml:"threshold,omitempty"`

		ConvertToYCbCr bool `yaml:"convertToYCbCr"`
		StrictLevels   bool `yaml:"strictLevels"`
		PreserveRange  bool `yaml:"preserveRange"`

		// RescaleSigma states whether Sigma is in the units of the image dtype.
		// It should always be set; when omitted it defaults to true with a
		// deprecation warning.
		RescaleSigma *bool `yaml:"rescaleSigma,omitempty"`
	} `yaml:"wavelet"`

	// Cycle spinning parameters
	CycleSpin struct {
		// Enabled wraps every denoiser in cycle spinning
		Enabled bool `yaml:"enabled"`

		// MaxShifts holds one value for all spatial axes or one per axis
		MaxShifts []int `yaml:"maxShifts"`

		// ShiftSteps holds one value for all spatial axes or one per axis
		ShiftSteps []int `yaml:"shiftSteps"`

		// NumWorkers bounds concurrent shifts; 0 uses every core
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"cycleSpin"`

	// Total variation (Chambolle) parameters
	TVChambolle struct {
		Weight  float64 `yaml:"weight"`
		Eps     float64 `yaml:"eps"`
		MaxIter int     `yaml:"maxIter"`
	} `yaml:"tvChambolle"`

	// Total variation (split Bregman) parameters
	TVBregman struct {
		Weight    float64 `yaml:"weight"`
		MaxIter   int     `yaml:"maxIter"`
		Eps       float64 `yaml:"eps"`
		Isotropic bool    `yaml:"isotropic"`
	} `yaml:"tvBregman"`

	// Bilateral filter parameters
	Bilateral struct {
		// WinSize of 0 derives the window from SigmaSpatial
		WinSize int `yaml:"winSize"`

		// SigmaColor defaults to the image standard deviation when omitted
		SigmaColor   *float64 `yaml:"sigmaColor,omitempty"`
		SigmaSpatial float64  `yaml:"sigmaSpatial"`
	} `yaml:"bilateral"`

	// Non-local means parameters
	NLMeans struct {
		PatchSize     int     `yaml:"patchSize"`
		PatchDistance int     `yaml:"patchDistance"`
		H             float64 `yaml:"h"`
		FastMode      bool    `yaml:"fastMode"`
		Sigma         float64 `yaml:"sigma"`
	} `yaml:"nlMeans"`

	// Benchmark parameters
	Bench struct {
		// Rows and Cols size the synthetic phantom
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`

		// Color selects the RGB phantom, denoised as a multichannel image
		Color bool `yaml:"color"`

		// NoiseSigma is the standard deviation of the added Gaussian noise
		NoiseSigma float64 `yaml:"noiseSigma"`

		// Seed makes the noise reproducible
		Seed uint64 `yaml:"seed"`

		// Denoisers lists the denoisers to run
		Denoisers []string `yaml:"denoisers"`
	} `yaml:"bench"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// SaveDir receives JPEG renderings of the clean, noisy and denoised
		// images; empty disables saving
		SaveDir string `yaml:"saveDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	wopts := restoration.DefaultWaveletOptions()
	cfg.Wavelet.Wavelet = wopts.Wavelet
	cfg.Wavelet.Method = string(wopts.Method)
	cfg.Wavelet.Mode = string(wopts.Mode)
	cfg.Wavelet.RescaleSigma = lo.ToPtr(true)

	cfg.CycleSpin.Enabled = false
	cfg.CycleSpin.MaxShifts = []int{1}
	cfg.CycleSpin.ShiftSteps = []int{1}
	cfg.CycleSpin.NumWorkers = runtime.NumCPU() // Use all available cores by default

	tv := restoration.DefaultTVChambolleOptions()
	cfg.TVChambolle.Weight = tv.Weight
	cfg.TVChambolle.Eps = tv.Eps
	cfg.TVChambolle.MaxIter = tv.MaxIter

	bregman := restoration.DefaultTVBregmanOptions()
	cfg.TVBregman.Weight = bregman.Weight
	cfg.TVBregman.MaxIter = bregman.MaxIter
	cfg.TVBregman.Eps = bregman.Eps
	cfg.TVBregman.Isotropic = bregman.Isotropic

	cfg.Bilateral.SigmaSpatial = restoration.DefaultBilateralOptions().SigmaSpatial

	nlm := restoration.DefaultNLMeansOptions()
	cfg.NLMeans.PatchSize = nlm.PatchSize
	cfg.NLMeans.PatchDistance = nlm.PatchDistance
	cfg.NLMeans.H = nlm.H
	cfg.NLMeans.FastMode = nlm.FastMode

	cfg.Bench.Rows = 128
	cfg.Bench.Cols = 128
	cfg.Bench.NoiseSigma = 0.1
	cfg.Bench.Seed = 1234
	cfg.Bench.Denoisers = append([]string(nil), Denoisers...)

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Keys missing from the file keep their defaults, except for
	// rescaleSigma which has to be stated explicitly.
	cfg.Wavelet.RescaleSigma = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks the values that cannot be caught by the denoisers
// themselves until they run.
func (c *Config) Validate() error {
	if _, err := wavelet.Lookup(c.Wavelet.Wavelet); err != nil {
		return fmt.Errorf("%w: wavelet: %w", ErrInvalidConfig, err)
	}
	if c.Bench.Rows <= 0 || c.Bench.Cols <= 0 {
		return fmt.Errorf("%w: bench image size %dx%d", ErrInvalidConfig, c.Bench.Rows, c.Bench.Cols)
	}
	if c.Bench.NoiseSigma < 0 {
		return fmt.Errorf("%w: negative noise sigma %g", ErrInvalidConfig, c.Bench.NoiseSigma)
	}
	if len(c.Bench.Denoisers) == 0 {
		return fmt.Errorf("%w: no denoisers selected", ErrInvalidConfig)
	}
	if unknown := lo.Without(c.Bench.Denoisers, Denoisers...); len(unknown) > 0 {
		return fmt.Errorf("%w: unknown denoisers %v, expected some of %v", ErrInvalidConfig, unknown, Denoisers)
	}
	if len(c.CycleSpin.MaxShifts) == 0 || len(c.CycleSpin.ShiftSteps) == 0 {
		return fmt.Errorf("%w: cycle spinning needs maxShifts and shiftSteps", ErrInvalidConfig)
	}
	return nil
}

// WaveletOptions converts the wavelet section. The returned flag is the
// sigma rescaling choice; when the file leaves it out a deprecation warning
// goes to reporter (nil: the standard logrus logger) and true is assumed.
func (c *Config) WaveletOptions(multichannel bool, reporter restoration.Reporter) (restoration.WaveletOptions, bool) {
	if reporter == nil {
		reporter = restoration.LogReporter{Logger: logrus.StandardLogger()}
	}
	w := c.Wavelet
	opts := restoration.WaveletOptions{
		Sigma:          append([]float64(nil), w.Sigma...),
		Wavelet:        w.Wavelet,
		Levels:         w.Levels,
		Method:         restoration.ThresholdMethod(w.Method),
		Threshold:      w.Threshold,
		Mode:           restoration.ThresholdMode(w.Mode),
		Multichannel:   multichannel,
		ConvertToYCbCr: w.ConvertToYCbCr,
		StrictLevels:   w.StrictLevels,
		PreserveRange:  w.PreserveRange,
		Reporter:       reporter,
	}

	if w.RescaleSigma == nil {
		reporter.Warn(restoration.Warning{
			Kind: restoration.WarnImplicitRescale,
			Message: "wavelet.rescaleSigma is not set; it defaults to true, which rescales a given sigma " +
				"together with the image. Set it explicitly to silence this warning",
		})
		return opts, true
	}
	return opts, *w.RescaleSigma
}

// CycleSpinOptions converts the cycle spinning section.
func (c *Config) CycleSpinOptions(multichannel bool) restoration.CycleSpinOptions {
	return restoration.CycleSpinOptions{
		MaxShifts:    axisSpec(c.CycleSpin.MaxShifts),
		ShiftSteps:   axisSpec(c.CycleSpin.ShiftSteps),
		Multichannel: multichannel,
		NumWorkers:   c.CycleSpin.NumWorkers,
	}
}

func axisSpec(values []int) restoration.AxisSpec {
	if len(values) == 1 {
		return restoration.Uniform(values[0])
	}
	return restoration.PerAxis(values...)
}

// TVChambolleOptions converts the Chambolle section.
func (c *Config) TVChambolleOptions(multichannel bool) restoration.TVChambolleOptions {
	return restoration.TVChambolleOptions{
		Weight:       c.TVChambolle.Weight,
		Eps:          c.TVChambolle.Eps,
		MaxIter:      c.TVChambolle.MaxIter,
		Multichannel: multichannel,
	}
}

// TVBregmanOptions converts the split Bregman section.
func (c *Config) TVBregmanOptions(multichannel bool) restoration.TVBregmanOptions {
	return restoration.TVBregmanOptions{
		Weight:       c.TVBregman.Weight,
		MaxIter:      c.TVBregman.MaxIter,
		Eps:          c.TVBregman.Eps,
		Isotropic:    c.TVBregman.Isotropic,
		Multichannel: multichannel,
	}
}

// BilateralOptions converts the bilateral section.
func (c *Config) BilateralOptions(multichannel bool, reporter restoration.Reporter) restoration.BilateralOptions {
	return restoration.BilateralOptions{
		WinSize:      c.Bilateral.WinSize,
		SigmaColor:   c.Bilateral.SigmaColor,
		SigmaSpatial: c.Bilateral.SigmaSpatial,
		Multichannel: multichannel,
		Reporter:     reporter,
	}
}

// NLMeansOptions converts the non-local means section.
func (c *Config) NLMeansOptions(multichannel bool) restoration.NLMeansOptions {
	return restoration.NLMeansOptions{
		PatchSize:     c.NLMeans.PatchSize,
		PatchDistance: c.NLMeans.PatchDistance,
		H:             c.NLMeans.H,
		FastMode:      c.NLMeans.FastMode,
		Sigma:         c.NLMeans.Sigma,
		Multichannel:  multichannel,
	}
}
