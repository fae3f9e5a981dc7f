package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"imrestore/internal/models"
	"imrestore/internal/testimages"
	"imrestore/pkg/config"
	"imrestore/pkg/metrics"
	"imrestore/pkg/restoration"
	"imrestore/pkg/visualization"
)

// highFrequencyCutoff separates the residual noise band, in cycles per
// sample, for the spectral energy column of the report.
const highFrequencyCutoff = 0.25

// Result holds the quality and cost of one denoiser run.
type Result struct {
	Denoiser string
	PSNR     float64
	SSIM     float64

	// HighFreq is the share of spectral energy above highFrequencyCutoff,
	// averaged over channels
	HighFreq float64

	// Entropy of the intensity histogram in bits, averaged over channels
	Entropy float64

	Elapsed time.Duration
}

// Report is the noisy baseline followed by one result per denoiser.
type Report struct {
	Noisy   Result
	Results []Result
}

// benchInput is the clean phantom, its noisy copy and the noise level
// estimated from the noisy copy.
type benchInput struct {
	clean, noisy *models.Image
	sigma        []float64
	baseline     Result
}

func prepareInput(cfg *config.Config) (*benchInput, error) {
	var clean *models.Image
	if cfg.Bench.Color {
		clean = testimages.PhantomRGB(cfg.Bench.Rows, cfg.Bench.Cols)
	} else {
		clean = testimages.Phantom(cfg.Bench.Rows, cfg.Bench.Cols)
	}
	noisy := testimages.Clip(testimages.AddGaussianNoise(clean, cfg.Bench.NoiseSigma, cfg.Bench.Seed), 0, 1)

	sigma, err := restoration.EstimateSigma(noisy, restoration.EstimateOptions{Multichannel: cfg.Bench.Color})
	if err != nil {
		return nil, fmt.Errorf("estimating noise: %w", err)
	}
	baseline, err := measure(clean, noisy, cfg.Bench.Color)
	if err != nil {
		return nil, err
	}
	baseline.Denoiser = "noisy"
	return &benchInput{clean: clean, noisy: noisy, sigma: sigma, baseline: baseline}, nil
}

// measure compares out against clean. The spectral and histogram metrics
// are computed per channel for color images.
func measure(clean, out *models.Image, multichannel bool) (Result, error) {
	var r Result
	var err error
	if r.PSNR, err = metrics.PSNR(clean, out, 1); err != nil {
		return r, err
	}
	if r.SSIM, err = metrics.SSIM(clean, out, 1); err != nil {
		return r, err
	}

	planes := []*models.Image{out}
	if multichannel {
		planes = lo.Times(out.Shape[out.NDim()-1], out.Channel)
	}
	for _, plane := range planes {
		hf, err := metrics.HighFrequencyEnergy(plane, highFrequencyCutoff)
		if err != nil {
			return r, err
		}
		r.HighFreq += hf / float64(len(planes))
		r.Entropy += metrics.Entropy(plane) / float64(len(planes))
	}
	return r, nil
}

// denoiser builds the function for name from the configuration.
func denoiser(cfg *config.Config, name string) (restoration.DenoiseFunc, error) {
	mc := cfg.Bench.Color
	switch name {
	case config.DenoiserWavelet:
		opts, rescale := cfg.WaveletOptions(mc, nil)
		return restoration.WaveletDenoiser(rescale, opts), nil
	case config.DenoiserTV:
		opts := cfg.TVChambolleOptions(mc)
		return func(img *models.Image) (*models.Image, error) {
			return restoration.DenoiseTVChambolle(img, opts)
		}, nil
	case config.DenoiserBregman:
		opts := cfg.TVBregmanOptions(mc)
		return func(img *models.Image) (*models.Image, error) {
			return restoration.DenoiseTVBregman(img, opts)
		}, nil
	case config.DenoiserBilateral:
		opts := cfg.BilateralOptions(mc, nil)
		return func(img *models.Image) (*models.Image, error) {
			return restoration.DenoiseBilateral(img, opts)
		}, nil
	case config.DenoiserNLMeans:
		opts := cfg.NLMeansOptions(mc)
		return func(img *models.Image) (*models.Image, error) {
			return restoration.DenoiseNLMeans(img, opts)
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown denoiser %q", config.ErrInvalidConfig, name)
}

// runBench runs every configured denoiser on the same noisy phantom.
func runBench(ctx context.Context, cfg *config.Config) (*Report, error) {
	in, err := prepareInput(cfg)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"shape":     in.noisy.Shape,
		"noise":     cfg.Bench.NoiseSigma,
		"estimated": in.sigma,
		"psnr":      in.baseline.PSNR,
	}).Info("Prepared noisy phantom")

	if err := save(cfg, in.clean, "clean"); err != nil {
		return nil, err
	}
	if err := save(cfg, in.noisy, "noisy"); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(cfg.Bench.Denoisers))
	for _, name := range lo.Uniq(cfg.Bench.Denoisers) {
		fn, err := denoiser(cfg, name)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		var out *models.Image
		if cfg.CycleSpin.Enabled {
			out, err = restoration.CycleSpin(ctx, in.noisy, fn, cfg.CycleSpinOptions(cfg.Bench.Color))
		} else {
			out, err = fn(in.noisy)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		elapsed := time.Since(start)

		r, err := measure(in.clean, out, cfg.Bench.Color)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		r.Denoiser = name
		r.Elapsed = elapsed

		if err := save(cfg, out, name); err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"denoiser": name,
			"psnr":     r.PSNR,
			"highFreq": r.HighFreq,
			"elapsed":  elapsed,
		}).Debug("Denoiser finished")
		results = append(results, r)
	}
	return &Report{Noisy: in.baseline, Results: results}, nil
}

// save renders im into the configured output directory, if any.
func save(cfg *config.Config, im *models.Image, name string) error {
	if cfg.Output.SaveDir == "" {
		return nil
	}
	viewer, err := visualization.NewViewer(im, cfg.Bench.Color)
	if err != nil {
		return err
	}
	if err := viewer.SaveSliceSequence(cfg.Output.SaveDir, name); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}

// workerCount resolves the cycle spinning worker setting the way
// restoration.CycleSpin does.
func workerCount(cfg *config.Config) int {
	if cfg.CycleSpin.NumWorkers <= 0 {
		return runtime.NumCPU()
	}
	return cfg.CycleSpin.NumWorkers
}

func printResults(w io.Writer, cfg *config.Config, report *Report) {
	fmt.Fprintln(w, "================================")
	fmt.Fprintf(w, "Phantom %dx%d (color: %t), noise sigma %.3f, seed %d\n",
		cfg.Bench.Rows, cfg.Bench.Cols, cfg.Bench.Color, cfg.Bench.NoiseSigma, cfg.Bench.Seed)
	if cfg.CycleSpin.Enabled {
		fmt.Fprintf(w, "Cycle spinning: max shifts %v, steps %v, %d workers\n",
			cfg.CycleSpin.MaxShifts, cfg.CycleSpin.ShiftSteps, workerCount(cfg))
	}
	fmt.Fprintln(w, "================================")
	fmt.Fprintf(w, "%-10s %8s %8s %9s %8s %12s\n", "denoiser", "PSNR", "SSIM", "HF energy", "entropy", "time")
	for _, r := range append([]Result{report.Noisy}, report.Results...) {
		fmt.Fprintf(w, "%-10s %8.2f %8.4f %9.4f %8.3f %12s\n",
			r.Denoiser, r.PSNR, r.SSIM, r.HighFreq, r.Entropy, r.Elapsed.Round(time.Microsecond))
	}
}
