package restoration

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"imrestore/internal/models"
	"imrestore/pkg/wavelet"
)

// ThresholdMethod selects how subband thresholds are derived from sigma.
type ThresholdMethod string

const (
	// MethodNone uses the caller's explicit threshold.
	MethodNone  ThresholdMethod = ""
	BayesShrink ThresholdMethod = "BayesShrink"
	VisuShrink  ThresholdMethod = "VisuShrink"
)

func (m ThresholdMethod) valid() bool {
	return m == MethodNone || m == BayesShrink || m == VisuShrink
}

// ThresholdMode is the shrinkage rule applied to coefficients.
type ThresholdMode string

const (
	Soft    ThresholdMode = "soft"
	Hard    ThresholdMode = "hard"
	Garrote ThresholdMode = "garrote"
)

func (m ThresholdMode) valid() bool {
	return m == Soft || m == Hard || m == Garrote
}

// ThresholdSet holds one threshold per detail subband, aligned with
// wavelet.Coefficients.Details.
type ThresholdSet []map[string]float64

// ComputeThresholds derives per-subband thresholds. With MethodNone the
// explicit threshold is used for every subband and must be non-nil; with
// a named method explicit is ignored.
func ComputeThresholds(c *wavelet.Coefficients, sigma float64, method ThresholdMethod, explicit *float64) (ThresholdSet, error) {
	if !method.valid() {
		return nil, invalidf("unknown thresholding method %q", method)
	}
	if method == MethodNone && explicit == nil {
		return nil, invalidf("a threshold must be given when no thresholding method is selected")
	}

	variance := sigma * sigma
	var universal float64
	if method == VisuShrink && len(c.Shapes) > 0 {
		universal = universalThreshold(c.Shapes[len(c.Shapes)-1], sigma)
	}

	set := make(ThresholdSet, len(c.Details))
	for l, bands := range c.Details {
		set[l] = make(map[string]float64, len(bands))
		for key, band := range bands {
			switch method {
			case BayesShrink:
				set[l][key] = bayesThreshold(band.Data, variance)
			case VisuShrink:
				set[l][key] = universal
			default:
				set[l][key] = *explicit
			}
		}
	}
	return set, nil
}

// bayesThreshold is sigma^2 / sigma_x with sigma_x estimated from the
// subband energy minus the noise variance.
func bayesThreshold(detail []float64, variance float64) float64 {
	var energy float64
	for _, v := range detail {
		energy += v * v
	}
	signal := energy/float64(len(detail)) - variance
	return variance / math.Sqrt(math.Max(signal, epsilon))
}

const epsilon = 2.220446049250313e-16

// universalThreshold is the VisuShrink threshold sigma*sqrt(2 ln N).
func universalThreshold(shape []int, sigma float64) float64 {
	n := lo.Reduce(shape, func(agg, s, _ int) int { return agg * s }, 1)
	return sigma * math.Sqrt(2*math.Log(float64(n)))
}

// ApplyThresholds shrinks every detail subband in place.
func ApplyThresholds(c *wavelet.Coefficients, set ThresholdSet, mode ThresholdMode) error {
	if !mode.valid() {
		return invalidf("unknown thresholding mode %q", mode)
	}
	if len(set) != len(c.Details) {
		return invalidf("%d threshold levels for %d decomposition levels", len(set), len(c.Details))
	}
	for l, bands := range c.Details {
		for key, band := range bands {
			t, ok := set[l][key]
			if !ok {
				return invalidf("no threshold for subband %q at level %d", key, l)
			}
			shrink(band.Data, t, mode)
		}
	}
	return nil
}

func shrink(data []float64, t float64, mode ThresholdMode) {
	for i, v := range data {
		a := math.Abs(v)
		switch mode {
		case Soft:
			if a <= t {
				data[i] = 0
			} else {
				data[i] = math.Copysign(a-t, v)
			}
		case Hard:
			if a < t {
				data[i] = 0
			}
		case Garrote:
			if a <= t {
				data[i] = 0
			} else {
				data[i] = v - t*t/v
			}
		}
	}
}

// ThresholdOptions configures ThresholdWavelet.
type ThresholdOptions struct {
	// Wavelet names the filter bank, see wavelet.Names.
	Wavelet string

	// Method selects automatic thresholds. MethodNone requires Threshold.
	Method ThresholdMethod

	// Threshold is an explicit threshold, ignored with a warning when a
	// Method is also set.
	Threshold *float64

	// Sigma is the noise standard deviation; nil estimates it from the
	// finest detail subband.
	Sigma *float64

	Mode ThresholdMode

	// Levels is the decomposition depth; nil picks three levels fewer than
	// the shortest axis supports, but at least one.
	Levels *int

	// StrictLevels turns a too-deep Levels into an error instead of a
	// boundary-effects warning.
	StrictLevels bool

	Reporter Reporter
}

type thresholdPlan struct {
	wavelet  *wavelet.Wavelet
	levels   int
	method   ThresholdMethod
	explicit *float64
	mode     ThresholdMode
	warnings []Warning
}

// defaultLevels stops three levels short of the deepest one the shortest
// axis allows, and decomposes at least once.
func defaultLevels(shape []int, w *wavelet.Wavelet) int {
	return max(wavelet.MaxLevelShape(shape, w)-3, 1)
}

// planThreshold validates opts against shape before any transform work.
func planThreshold(shape []int, opts ThresholdOptions) (*thresholdPlan, error) {
	if !opts.Method.valid() {
		return nil, invalidf("unknown thresholding method %q, expected %q or %q", opts.Method, BayesShrink, VisuShrink)
	}
	if opts.Method == MethodNone && opts.Threshold == nil {
		return nil, invalidf("if method is none, a threshold must be provided")
	}
	mode := opts.Mode
	if mode == "" {
		mode = Soft
	}
	if !mode.valid() {
		return nil, invalidf("unknown thresholding mode %q", opts.Mode)
	}
	w, err := wavelet.Lookup(opts.Wavelet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	p := &thresholdPlan{wavelet: w, method: opts.Method, explicit: opts.Threshold, mode: mode}
	if opts.Levels == nil {
		p.levels = defaultLevels(shape, w)
	} else {
		p.levels = *opts.Levels
		err := wavelet.ValidateLevel(shape, w, p.levels)
		switch {
		case errors.Is(err, wavelet.ErrInvalidLevel):
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		case errors.Is(err, wavelet.ErrLevelTooDeep) && opts.StrictLevels:
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedConfiguration, err)
		case err != nil:
			p.warnings = append(p.warnings, warnf(WarnBoundaryEffects, "%v", err))
		}
	}

	if opts.Method != MethodNone && opts.Threshold != nil {
		p.warnings = append(p.warnings, warnf(WarnThresholdIgnored,
			"thresholding method %s selected; the user-specified threshold %g will be ignored", opts.Method, *opts.Threshold))
	}
	if !w.Orthogonal {
		p.warnings = append(p.warnings, warnf(WarnNonOrthogonal,
			"wavelet thresholding was designed for orthogonal wavelets; results with %s are likely to be suboptimal", w.Name))
	}
	return p, nil
}

// ThresholdWavelet denoises a single-channel image by shrinking its wavelet
// detail coefficients. It is the building block of DenoiseWavelet and
// works on the samples as given, without dtype normalization.
func ThresholdWavelet(img *models.Image, opts ThresholdOptions) (*models.Image, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	p, err := planThreshold(img.Shape, opts)
	if err != nil {
		return nil, err
	}
	emit(opts.Reporter, p.warnings)
	return p.run(img, opts.Sigma)
}

func (p *thresholdPlan) run(img *models.Image, sigma *float64) (*models.Image, error) {
	coeffs, err := wavelet.Decompose(img, p.wavelet, p.levels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	var s float64
	switch {
	case sigma != nil:
		s = *sigma
	case coeffs.Levels() > 0:
		finest := coeffs.Details[coeffs.Levels()-1]
		s = sigmaFromDetail(finest[wavelet.DetailKey(img.NDim())].Data)
	}

	set, err := ComputeThresholds(coeffs, s, p.method, p.explicit)
	if err != nil {
		return nil, err
	}
	if err := ApplyThresholds(coeffs, set, p.mode); err != nil {
		return nil, err
	}
	out, err := wavelet.Reconstruct(coeffs)
	if err != nil {
		return nil, err
	}
	out.DType = img.DType
	return out, nil
}
