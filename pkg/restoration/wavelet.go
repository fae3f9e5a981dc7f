package restoration

import (
	"fmt"

	"imrestore/internal/models"
	"imrestore/pkg/colorspace"
	"imrestore/pkg/imgconv"
)

// WaveletOptions configures DenoiseWavelet. Build one with
// DefaultWaveletOptions and override fields as needed.
type WaveletOptions struct {
	// Sigma is the noise standard deviation: nil to estimate it, one value
	// for every channel, or one value per channel (Multichannel only).
	Sigma []float64

	// Wavelet names the filter bank, see wavelet.Names.
	Wavelet string

	// Levels is the decomposition depth; nil uses three levels fewer than
	// the shortest spatial axis supports, but at least one.
	Levels *int

	Method    ThresholdMethod
	Threshold *float64
	Mode      ThresholdMode

	// Multichannel treats the last axis as channels.
	Multichannel bool

	// ConvertToYCbCr denoises an RGB image in luma/chroma space. Requires
	// Multichannel and exactly three channels.
	ConvertToYCbCr bool

	// StrictLevels turns a too-deep Levels into ErrUnsupportedConfiguration.
	StrictLevels bool

	// PreserveRange maps integer input back to its dtype's units instead of
	// returning the normalized float image.
	PreserveRange bool

	Reporter Reporter
}

// DefaultWaveletOptions returns BayesShrink soft thresholding with the Haar
// (db1) wavelet and an estimated sigma.
func DefaultWaveletOptions() WaveletOptions {
	return WaveletOptions{
		Wavelet: "db1",
		Method:  BayesShrink,
		Mode:    Soft,
	}
}

type waveletPlan struct {
	layout    models.Layout
	threshold *thresholdPlan
	sigmas    []*float64
	clip      bool
}

// DenoiseWavelet removes additive Gaussian noise by thresholding wavelet
// detail coefficients.
//
// rescaleSigma states whether a user-supplied sigma is in the units of
// img's dtype and must follow the image through normalization (and through
// the YCbCr conversion). The flag has no default.
//
// Integer images are normalized to [0, 1] (signed: [-1, 1]) and the result
// is clipped to that range; float images are processed as given. The
// result is a float image unless PreserveRange is set.
func DenoiseWavelet(img *models.Image, rescaleSigma bool, opts WaveletOptions) (*models.Image, error) {
	p, err := planWavelet(img, rescaleSigma, opts)
	if err != nil {
		return nil, err
	}
	emit(opts.Reporter, p.threshold.warnings)

	work := imgconv.AsFloat(img)

	var out *models.Image
	switch {
	case opts.ConvertToYCbCr:
		out, err = p.denoiseYCbCr(work, rescaleSigma)
	case p.layout.IsMultichannel():
		out, err = p.denoisePerChannel(work)
	default:
		out, err = p.threshold.run(work, p.sigmas[0])
	}
	if err != nil {
		return nil, err
	}

	out.DType = work.DType
	if p.clip {
		low, high := imgconv.ClipRange(work)
		imgconv.Clip(out, low, high)
	}
	imgconv.Quantize(out)
	if opts.PreserveRange && !img.DType.IsFloat() {
		return imgconv.RestoreRange(out, img.DType), nil
	}
	return out, nil
}

func planWavelet(img *models.Image, rescaleSigma bool, opts WaveletOptions) (*waveletPlan, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	if opts.ConvertToYCbCr && !opts.Multichannel {
		return nil, invalidf("YCbCr conversion requires multichannel input")
	}
	if opts.Multichannel && img.NDim() < 2 {
		return nil, invalidf("multichannel image needs at least 2 axes, got shape %v", img.Shape)
	}

	layout := models.LayoutOf(img, opts.Multichannel)
	if opts.ConvertToYCbCr && layout.Channels() != 3 {
		return nil, invalidf("YCbCr conversion needs 3 channels, got %d", layout.Channels())
	}

	sigmas, err := channelSigmas(opts.Sigma, layout)
	if err != nil {
		return nil, err
	}
	if rescaleSigma {
		scale := imgconv.Scale(img.DType)
		for _, s := range sigmas {
			if s != nil {
				*s *= scale
			}
		}
	}

	tp, err := planThreshold(layout.SpatialShape(img.Shape), ThresholdOptions{
		Wavelet:      opts.Wavelet,
		Method:       opts.Method,
		Threshold:    opts.Threshold,
		Mode:         opts.Mode,
		Levels:       opts.Levels,
		StrictLevels: opts.StrictLevels,
	})
	if err != nil {
		return nil, err
	}

	return &waveletPlan{
		layout:    layout,
		threshold: tp,
		sigmas:    sigmas,
		clip:      !img.DType.IsFloat(),
	}, nil
}

// channelSigmas expands the user sigma to one (possibly nil) entry per
// channel. Entries are fresh copies and may be scaled in place.
func channelSigmas(sigma []float64, layout models.Layout) ([]*float64, error) {
	n := layout.Channels()
	out := make([]*float64, n)
	switch {
	case len(sigma) == 0:
	case len(sigma) == 1:
		for c := range out {
			s := sigma[0]
			out[c] = &s
		}
	case !layout.IsMultichannel():
		return nil, invalidf("a sigma per channel requires multichannel input, got %d values", len(sigma))
	case len(sigma) != n:
		return nil, invalidf("got %d sigmas for %d channels", len(sigma), n)
	default:
		for c := range out {
			s := sigma[c]
			out[c] = &s
		}
	}
	for _, s := range out {
		if s != nil && *s < 0 {
			return nil, invalidf("sigma must be non-negative, got %g", *s)
		}
	}
	return out, nil
}

func (p *waveletPlan) denoisePerChannel(img *models.Image) (*models.Image, error) {
	out := models.New(img.DType, img.Shape...)
	for c := 0; c < p.layout.Channels(); c++ {
		ch, err := p.threshold.run(img.Channel(c), p.sigmas[c])
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
		if err := out.SetChannel(c, ch); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// denoiseYCbCr denoises each luma/chroma channel after stretching it to
// [0, 1]. Constant channels are passed through untouched.
func (p *waveletPlan) denoiseYCbCr(img *models.Image, rescaleSigma bool) (*models.Image, error) {
	ycc, err := colorspace.RGBToYCbCr(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	sigmas := p.sigmas
	if rescaleSigma && sigmas[0] != nil {
		rgb := make([]float64, 3)
		for c, s := range sigmas {
			rgb[c] = *s
		}
		converted, err := colorspace.RescaleSigma(rgb)
		if err != nil {
			return nil, err
		}
		for c := range sigmas {
			sigmas[c] = &converted[c]
		}
	}

	for c := 0; c < 3; c++ {
		ch := ycc.Channel(c)
		low, high := ch.Min(), ch.Max()
		span := high - low
		if span == 0 {
			continue
		}
		for i, v := range ch.Data {
			ch.Data[i] = (v - low) / span
		}
		var sigma *float64
		if sigmas[c] != nil {
			s := *sigmas[c] / span
			sigma = &s
		}
		den, err := p.threshold.run(ch, sigma)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
		for i, v := range den.Data {
			den.Data[i] = v*span + low
		}
		if err := ycc.SetChannel(c, den); err != nil {
			return nil, err
		}
	}

	out, err := colorspace.YCbCrToRGB(ycc)
	if err != nil {
		return nil, err
	}
	return out, nil
}
