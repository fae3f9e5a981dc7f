package restoration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"imrestore/internal/models"
	"imrestore/pkg/imgconv"
)

// BilateralOptions configures DenoiseBilateral.
type BilateralOptions struct {
	// WinSize is the side of the square window; 0 derives it from
	// SigmaSpatial as max(5, 2*ceil(3*SigmaSpatial)+1).
	WinSize int

	// SigmaColor is the radiometric standard deviation; nil uses the
	// standard deviation of the image.
	SigmaColor *float64

	// SigmaSpatial is the standard deviation of the spatial Gaussian.
	SigmaSpatial float64

	Multichannel bool

	Reporter Reporter
}

// DefaultBilateralOptions returns an automatic window and color sigma with
// a spatial sigma of 1.
func DefaultBilateralOptions() BilateralOptions {
	return BilateralOptions{SigmaSpatial: 1}
}

// DenoiseBilateral smooths a 2-D grayscale or color image while preserving
// edges: every neighbour is weighted by both its spatial distance and its
// color distance to the centre pixel. Borders replicate the edge pixels.
func DenoiseBilateral(img *models.Image, opts BilateralOptions) (*models.Image, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	if err := checkBilateralLayout(img, opts); err != nil {
		return nil, err
	}
	if opts.SigmaSpatial <= 0 {
		return nil, invalidf("spatial sigma must be positive, got %g", opts.SigmaSpatial)
	}
	if opts.SigmaColor != nil && *opts.SigmaColor < 0 {
		return nil, invalidf("color sigma must be non-negative, got %g", *opts.SigmaColor)
	}
	if opts.WinSize < 0 {
		return nil, invalidf("window size must be non-negative, got %d", opts.WinSize)
	}

	work := imgconv.AsFloat(img)
	channels := 1
	if opts.Multichannel {
		channels = work.Shape[2]
		if channels != 3 && channels != 4 {
			emit(opts.Reporter, []Warning{warnf(WarnChannelsInterpreted,
				"the last axis of shape %v is interpreted as %d channels; bilateral filtering targets grayscale, RGB and RGBA images",
				work.Shape, channels)})
		}
	}

	winSize := opts.WinSize
	if winSize == 0 {
		winSize = max(5, 2*int(math.Ceil(3*opts.SigmaSpatial))+1)
	}
	var sigmaColor float64
	if opts.SigmaColor != nil {
		sigmaColor = *opts.SigmaColor
	} else {
		_, sigmaColor = stat.PopMeanStdDev(work.Data, nil)
	}

	out := bilateral(work, channels, winSize, sigmaColor, opts.SigmaSpatial)
	imgconv.Quantize(out)
	return out, nil
}

func checkBilateralLayout(img *models.Image, opts BilateralOptions) error {
	switch {
	case opts.Multichannel && img.NDim() == 2:
		return invalidf("bilateral filtering of a 2-D image with multichannel set; use multichannel=false for grayscale images")
	case opts.Multichannel && img.NDim() != 3:
		return invalidf("bilateral filtering handles 2-D grayscale and 2-D multichannel images, got %d axes", img.NDim())
	case !opts.Multichannel && img.NDim() != 2:
		return invalidf("bilateral filtering of grayscale images needs exactly 2 axes, got shape %v; set multichannel for 2-D color images", img.Shape)
	}
	return nil
}

func bilateral(img *models.Image, channels, winSize int, sigmaColor, sigmaSpatial float64) *models.Image {
	rows, cols := img.Shape[0], img.Shape[1]
	half := (winSize - 1) / 2
	side := 2*half + 1

	spatial := make([]float64, side*side)
	for dr := -half; dr <= half; dr++ {
		for dc := -half; dc <= half; dc++ {
			d2 := float64(dr*dr + dc*dc)
			spatial[(dr+half)*side+dc+half] = math.Exp(-d2 / (2 * sigmaSpatial * sigmaSpatial))
		}
	}
	colorDen := 2 * sigmaColor * sigmaColor

	src := img.Data
	out := models.New(img.DType, img.Shape...)
	splitRange(rows, func(start, end int) {
		acc := make([]float64, channels)
		for r := start; r < end; r++ {
			for c := 0; c < cols; c++ {
				centre := src[(r*cols+c)*channels : (r*cols+c+1)*channels]
				clear(acc)
				var wsum float64
				for dr := -half; dr <= half; dr++ {
					rr := clampIndex(r+dr, rows)
					for dc := -half; dc <= half; dc++ {
						cc := clampIndex(c+dc, cols)
						nb := src[(rr*cols+cc)*channels : (rr*cols+cc+1)*channels]
						var d2 float64
						for ch := range nb {
							diff := nb[ch] - centre[ch]
							d2 += diff * diff
						}
						wc := 1.0
						if d2 != 0 {
							wc = math.Exp(-d2 / colorDen)
						}
						w := wc * spatial[(dr+half)*side+dc+half]
						wsum += w
						for ch := range nb {
							acc[ch] += w * (nb[ch] - centre[ch])
						}
					}
				}
				dst := out.Data[(r*cols+c)*channels : (r*cols+c+1)*channels]
				for ch := range dst {
					dst[ch] = centre[ch] + acc[ch]/wsum
				}
			}
		}
	})
	return out
}

func clampIndex(k, n int) int {
	switch {
	case k < 0:
		return 0
	case k >= n:
		return n - 1
	}
	return k
}
