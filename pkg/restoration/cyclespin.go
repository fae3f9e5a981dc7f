package restoration

import (
	"context"
	"fmt"
	"runtime"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"imrestore/internal/models"
	"imrestore/pkg/imgconv"
)

// AxisSpec is a per-axis integer parameter given either as one value for
// every spatial axis or as an explicit list. The zero value means "use the
// default".
type AxisSpec struct {
	uniform *int
	perAxis []int
}

// Uniform applies n to every spatial axis.
func Uniform(n int) AxisSpec { return AxisSpec{uniform: &n} }

// PerAxis gives one value per axis. For multichannel images the channel
// axis may be omitted.
func PerAxis(values ...int) AxisSpec {
	return AxisSpec{perAxis: append([]int{}, values...)}
}

func (s AxisSpec) String() string {
	switch {
	case s.uniform != nil:
		return fmt.Sprint(*s.uniform)
	case s.perAxis != nil:
		return fmt.Sprint(s.perAxis)
	}
	return "default"
}

// expand resolves s to one value per axis of layout, filling the channel
// axis with channelValue.
func (s AxisSpec) expand(layout models.Layout, def, channelValue int) ([]int, error) {
	spatial := layout.SpatialNDim()
	var out []int
	switch {
	case s.perAxis != nil:
		switch {
		case len(s.perAxis) == layout.NDim():
			out = append([]int(nil), s.perAxis...)
		case layout.IsMultichannel() && len(s.perAxis) == spatial:
			out = append(append([]int(nil), s.perAxis...), channelValue)
		default:
			return nil, invalidf("%d values given for an image with %d axes (%s)", len(s.perAxis), layout.NDim(), layout)
		}
	default:
		v := def
		if s.uniform != nil {
			v = *s.uniform
		}
		out = lo.Times(spatial, func(int) int { return v })
		if layout.IsMultichannel() {
			out = append(out, channelValue)
		}
	}
	return out, nil
}

// DenoiseFunc is a denoiser applied to every shifted copy of the image.
// It must not retain or modify its argument.
type DenoiseFunc func(img *models.Image) (*models.Image, error)

// CycleSpinOptions configures CycleSpin.
type CycleSpinOptions struct {
	// MaxShifts bounds the shift along each axis, inclusive. Shifts on the
	// channel axis must be zero. Default 0.
	MaxShifts AxisSpec

	// ShiftSteps is the lattice step along each axis, at least 1. Default 1.
	ShiftSteps AxisSpec

	Multichannel bool

	// NumWorkers bounds how many shifts are denoised at once. Zero or less
	// uses runtime.NumCPU().
	NumWorkers int
}

// GenerateShifts enumerates the translations of a cycle-spinning ensemble
// in lexicographic order, the last axis varying fastest.
func GenerateShifts(layout models.Layout, maxShifts, shiftSteps AxisSpec) ([][]int, error) {
	maxes, err := maxShifts.expand(layout, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("max shifts: %w", err)
	}
	steps, err := shiftSteps.expand(layout, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("shift steps: %w", err)
	}
	for ax, s := range steps {
		if s < 1 {
			return nil, invalidf("shift steps must all be >= 1, got %d on axis %d", s, ax)
		}
	}
	for ax, m := range maxes {
		if m < 0 {
			return nil, invalidf("max shifts must be non-negative, got %d on axis %d", m, ax)
		}
	}
	if layout.IsMultichannel() && maxes[len(maxes)-1] != 0 {
		return nil, invalidf("multichannel cycle spinning cannot shift along the channel axis")
	}

	shifts := [][]int{{}}
	for ax := range maxes {
		var next [][]int
		for _, prefix := range shifts {
			for v := 0; v <= maxes[ax]; v += steps[ax] {
				next = append(next, append(append([]int(nil), prefix...), v))
			}
		}
		shifts = next
	}
	return shifts, nil
}

// CycleSpin averages fn over circularly shifted copies of img, each result
// shifted back before averaging. The shifts are evaluated concurrently but
// combined in a fixed order, so the output does not depend on NumWorkers.
// The first failing shift cancels the rest and its error is returned.
func CycleSpin(ctx context.Context, img *models.Image, fn DenoiseFunc, opts CycleSpinOptions) (*models.Image, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, invalidf("nil denoise function")
	}
	layout := models.LayoutOf(img, opts.Multichannel)
	shifts, err := GenerateShifts(layout, opts.MaxShifts, opts.ShiftSteps)
	if err != nil {
		return nil, err
	}

	workers := opts.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*models.Image, len(shifts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, shift := range shifts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := fn(img.Roll(shift))
			if err != nil {
				return fmt.Errorf("shift %v: %w", shift, err)
			}
			if !out.SameShape(img) {
				return fmt.Errorf("%w: shift %v: denoiser returned shape %v for %v",
					ErrInvalidArgument, shift, out.Shape, img.Shape)
			}
			back := lo.Map(shift, func(s, _ int) int { return -s })
			results[i] = out.Roll(back)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	avg := models.New(results[0].DType, img.Shape...)
	for _, r := range results {
		floats.Add(avg.Data, r.Data)
	}
	if len(results) > 1 {
		floats.Scale(1/float64(len(results)), avg.Data)
		imgconv.Quantize(avg)
	}
	return avg, nil
}

// WaveletDenoiser adapts DenoiseWavelet to a DenoiseFunc.
func WaveletDenoiser(rescaleSigma bool, opts WaveletOptions) DenoiseFunc {
	return func(img *models.Image) (*models.Image, error) {
		return DenoiseWavelet(img, rescaleSigma, opts)
	}
}
