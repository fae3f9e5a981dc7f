package restoration

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"imrestore/internal/models"
	"imrestore/pkg/imgconv"
)

// distanceCutoff skips candidate patches whose weight would be below
// exp(-5) in fast mode.
const distanceCutoff = 5.0

// NLMeansOptions configures DenoiseNLMeans.
type NLMeansOptions struct {
	// PatchSize is the side of the patches compared.
	PatchSize int

	// PatchDistance is the largest offset, per axis, at which candidate
	// patches are searched.
	PatchDistance int

	// H is the cut-off distance; larger values average more aggressively.
	H float64

	// FastMode compares patches with uniform weights using running sums
	// per offset. Otherwise patch pixels are Gaussian-weighted by their
	// distance to the patch centre.
	FastMode bool

	// Sigma is the known noise standard deviation, subtracted from the
	// patch distances. 0 disables the correction.
	Sigma float64

	// Multichannel treats the last axis of a 3-D image as channels. 2-D
	// images are always grayscale.
	Multichannel bool
}

// DefaultNLMeansOptions returns 7x7 patches searched up to 11 pixels away,
// h = 0.1 and fast mode.
func DefaultNLMeansOptions() NLMeansOptions {
	return NLMeansOptions{PatchSize: 7, PatchDistance: 11, H: 0.1, FastMode: true}
}

// DenoiseNLMeans replaces every pixel by a weighted mean of the pixels
// whose surrounding patch resembles its own. It handles 2-D grayscale, 2-D
// multichannel and 3-D grayscale images; anything else is
// ErrNotImplemented.
func DenoiseNLMeans(img *models.Image, opts NLMeansOptions) (*models.Image, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}

	var spatial []int
	channels := 1
	switch {
	case img.NDim() == 2:
		spatial = img.Shape
	case img.NDim() == 3 && opts.Multichannel:
		spatial, channels = img.Shape[:2], img.Shape[2]
	case img.NDim() == 3:
		spatial = img.Shape
	default:
		return nil, fmt.Errorf("%w: non-local means handles 2-D grayscale and color images or 3-D grayscale images, got shape %v",
			ErrNotImplemented, img.Shape)
	}

	if opts.PatchSize < 1 {
		return nil, invalidf("patch size must be positive, got %d", opts.PatchSize)
	}
	if opts.PatchDistance < 0 {
		return nil, invalidf("patch distance must be non-negative, got %d", opts.PatchDistance)
	}
	if opts.H <= 0 {
		return nil, invalidf("h must be positive, got %g", opts.H)
	}
	if opts.Sigma < 0 {
		return nil, invalidf("sigma must be non-negative, got %g", opts.Sigma)
	}

	work := imgconv.AsFloat(img)
	g := newNLMGrid(work.Data, spatial, channels, opts)
	out := models.New(work.DType, work.Shape...)
	if opts.FastMode {
		g.fast(out.Data)
	} else {
		g.slow(out.Data)
	}
	imgconv.Quantize(out)
	return out, nil
}

type nlmGrid struct {
	data     []float64
	shape    []int
	strides  []int
	coords   [][]int
	channels int

	half     int
	distance int
	h2       float64
	var2     float64
}

func newNLMGrid(data []float64, shape []int, channels int, opts NLMeansOptions) *nlmGrid {
	return &nlmGrid{
		data:     data,
		shape:    shape,
		strides:  models.Strides(shape),
		coords:   gridCoords(shape),
		channels: channels,
		half:     opts.PatchSize / 2,
		distance: opts.PatchDistance,
		h2:       opts.H * opts.H,
		var2:     2 * opts.Sigma * opts.Sigma,
	}
}

// pixel returns the flat pixel index of coordinate x+t, mirrored at the
// borders.
func (g *nlmGrid) pixel(x, t []int) int {
	idx := 0
	for ax, s := range g.strides {
		idx += reflectIndex(x[ax]+t[ax], g.shape[ax]) * s
	}
	return idx
}

// inBounds reports whether x+t lies inside the image.
func (g *nlmGrid) inBounds(x, t []int) bool {
	for ax, n := range g.shape {
		if k := x[ax] + t[ax]; k < 0 || k >= n {
			return false
		}
	}
	return true
}

func (g *nlmGrid) sqDiff(a, b int) float64 {
	nc := g.channels
	var d float64
	for ch := 0; ch < nc; ch++ {
		diff := g.data[a*nc+ch] - g.data[b*nc+ch]
		d += diff * diff
	}
	return d
}

// fast computes, for every search offset t, the squared difference image
// between the image and its shift by t on a grid padded by half a patch,
// box-sums it over patch windows axis by axis, and turns the sums into
// weights.
func (g *nlmGrid) fast(out []float64) {
	nd := len(g.shape)
	nc := g.channels
	padShape := lo.Map(g.shape, func(n, _ int) int { return n + 2*g.half })
	padStrides := models.Strides(padShape)
	padCoords := gridCoords(padShape)
	for _, y := range padCoords {
		for ax := range y {
			y[ax] -= g.half
		}
	}
	zero := make([]int, nd)
	origin := lo.Map(padCoords, func(y []int, _ int) int { return g.pixel(y, zero) })

	side := 2*g.half + 1
	patchSamples := float64(nc) * math.Pow(float64(side), float64(nd))
	weights := make([]float64, len(g.coords))
	sums := make([]float64, len(g.data))
	dist := make([]float64, len(padCoords))

	forEachOffset(nd, g.distance, func(t []int) {
		for q, y := range padCoords {
			dist[q] = g.sqDiff(origin[q], g.pixel(y, t))
		}
		for ax := range padShape {
			boxSum(dist, padShape, ax, g.half)
		}
		for p, x := range g.coords {
			if !g.inBounds(x, t) {
				continue
			}
			q := 0
			for ax, s := range padStrides {
				q += (x[ax] + g.half) * s
			}
			e := math.Max(dist[q]/patchSamples-g.var2, 0) / g.h2
			if e > distanceCutoff {
				continue
			}
			w := math.Exp(-e)
			src := g.pixel(x, t)
			weights[p] += w
			for ch := 0; ch < nc; ch++ {
				sums[p*nc+ch] += w * g.data[src*nc+ch]
			}
		}
	})

	for p, w := range weights {
		for ch := 0; ch < nc; ch++ {
			out[p*nc+ch] = sums[p*nc+ch] / w
		}
	}
}

// slow compares full patches with Gaussian weights for every pixel and
// every candidate in its search window.
func (g *nlmGrid) slow(out []float64) {
	nd := len(g.shape)
	nc := g.channels

	var patch [][]int
	forEachOffset(nd, g.half, func(u []int) { patch = append(patch, append([]int(nil), u...)) })
	kernel := make([]float64, len(patch))
	a := float64(2*g.half) / 4
	var total float64
	for i, u := range patch {
		kernel[i] = 1
		if a > 0 {
			var r2 float64
			for _, v := range u {
				r2 += float64(v * v)
			}
			kernel[i] = math.Exp(-r2 / (2 * a * a))
		}
		total += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= total * float64(nc)
	}

	splitRange(len(g.coords), func(start, end int) {
		shifted := make([]int, nd)
		acc := make([]float64, nc)
		for p := start; p < end; p++ {
			x := g.coords[p]
			clear(acc)
			var wsum float64
			forEachOffset(nd, g.distance, func(t []int) {
				if !g.inBounds(x, t) {
					return
				}
				var d float64
				for i, u := range patch {
					for ax := range shifted {
						shifted[ax] = u[ax] + t[ax]
					}
					d += kernel[i] * g.sqDiff(g.pixel(x, u), g.pixel(x, shifted))
				}
				w := math.Exp(-math.Max(d-g.var2, 0) / g.h2)
				src := g.pixel(x, t)
				wsum += w
				for ch := 0; ch < nc; ch++ {
					acc[ch] += w * g.data[src*nc+ch]
				}
			})
			for ch := 0; ch < nc; ch++ {
				out[p*nc+ch] = acc[ch] / wsum
			}
		}
	})
}

// boxSum replaces every sample of data, away from the lane ends, by the
// sum of the 2*half+1 samples centred on it along axis. The half samples
// at either end of each lane are zeroed.
func boxSum(data []float64, shape []int, axis, half int) {
	n := shape[axis]
	prefix := make([]float64, n+1)
	models.ForEachLane(shape, axis, func(base, stride int) {
		for k := 0; k < n; k++ {
			prefix[k+1] = prefix[k] + data[base+k*stride]
		}
		for k := 0; k < n; k++ {
			v := 0.0
			if k >= half && k < n-half {
				v = prefix[k+half+1] - prefix[k-half]
			}
			data[base+k*stride] = v
		}
	})
}

// gridCoords lists the coordinates of every element of shape in row-major
// order.
func gridCoords(shape []int) [][]int {
	n := lo.Reduce(shape, func(agg, s, _ int) int { return agg * s }, 1)
	out := make([][]int, n)
	cur := make([]int, len(shape))
	for i := range out {
		out[i] = append([]int(nil), cur...)
		for ax := len(shape) - 1; ax >= 0; ax-- {
			cur[ax]++
			if cur[ax] < shape[ax] {
				break
			}
			cur[ax] = 0
		}
	}
	return out
}

// forEachOffset calls fn with every vector in [-r, r]^nd. The slice passed
// to fn is reused between calls.
func forEachOffset(nd, r int, fn func(t []int)) {
	t := make([]int, nd)
	for ax := range t {
		t[ax] = -r
	}
	for {
		fn(t)
		ax := nd - 1
		for ; ax >= 0; ax-- {
			t[ax]++
			if t[ax] <= r {
				break
			}
			t[ax] = -r
		}
		if ax < 0 {
			return
		}
	}
}

// reflectIndex mirrors k into [0, n) without repeating the edge sample.
func reflectIndex(k, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	k %= period
	if k < 0 {
		k += period
	}
	if k >= n {
		k = period - k
	}
	return k
}
