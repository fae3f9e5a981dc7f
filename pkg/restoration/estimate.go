package restoration

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"imrestore/internal/models"
	"imrestore/pkg/wavelet"
)

// madScale converts a median absolute deviation into a Gaussian standard
// deviation.
var madScale = distuv.UnitNormal.Quantile(0.75)

// EstimateOptions controls EstimateSigma.
type EstimateOptions struct {
	// Multichannel treats the last axis as channels and estimates each
	// channel separately.
	Multichannel bool

	// AverageSigmas collapses per-channel estimates to their mean.
	AverageSigmas bool

	Reporter Reporter
}

// EstimateSigma returns a robust estimate of the standard deviation of
// additive Gaussian noise, one value per channel (a single value for
// grayscale input or when AverageSigmas is set). The estimate comes from
// the median absolute finest-scale diagonal detail coefficient of a
// Daubechies-2 transform; exact zeros are ignored so that flat padding
// does not drag the estimate to zero.
func EstimateSigma(img *models.Image, opts EstimateOptions) ([]float64, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	if opts.Multichannel && img.NDim() < 2 {
		return nil, invalidf("multichannel estimation needs at least 2 axes, got shape %v", img.Shape)
	}

	if opts.Multichannel {
		layout := models.LayoutOf(img, true)
		sigmas := make([]float64, layout.Channels())
		for c := range sigmas {
			sigmas[c] = estimateChannel(img.Channel(c))
		}
		if opts.AverageSigmas {
			return []float64{stat.Mean(sigmas, nil)}, nil
		}
		return sigmas, nil
	}

	if last := img.Shape[img.NDim()-1]; last <= 4 {
		emit(opts.Reporter, []Warning{warnf(WarnAmbiguousChannels,
			"image is size %d on the last axis, but multichannel is false; if this is a color image, set multichannel for proper noise estimation", last)})
	}
	return []float64{estimateChannel(img)}, nil
}

func estimateChannel(img *models.Image) float64 {
	w, _ := wavelet.Lookup("db2")
	bands := wavelet.Dwtn(img, w)
	return sigmaFromDetail(bands[wavelet.DetailKey(img.NDim())].Data)
}

// sigmaFromDetail is median(|d|)/0.6745 over the non-zero coefficients.
func sigmaFromDetail(detail []float64) float64 {
	abs := make([]float64, 0, len(detail))
	for _, v := range detail {
		if v != 0 {
			abs = append(abs, math.Abs(v))
		}
	}
	if len(abs) == 0 {
		return 0
	}
	return median(abs) / madScale
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
