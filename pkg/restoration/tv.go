package restoration

import (
	"fmt"
	"math"

	"imrestore/internal/models"
	"imrestore/pkg/imgconv"
)

// TVChambolleOptions configures DenoiseTVChambolle.
type TVChambolleOptions struct {
	// Weight trades fidelity for smoothness; larger is smoother.
	Weight float64

	// Eps is the relative energy change below which iteration stops.
	Eps float64

	MaxIter int

	// Multichannel denoises each channel of the last axis separately.
	Multichannel bool
}

// DefaultTVChambolleOptions returns weight 0.1, eps 2e-4 and 200 iterations.
func DefaultTVChambolleOptions() TVChambolleOptions {
	return TVChambolleOptions{Weight: 0.1, Eps: 2e-4, MaxIter: 200}
}

// DenoiseTVChambolle performs total-variation denoising of an image of any
// dimensionality with Chambolle's projection algorithm. Integer input is
// normalized first; the result is a float image.
func DenoiseTVChambolle(img *models.Image, opts TVChambolleOptions) (*models.Image, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	if opts.Weight <= 0 {
		return nil, invalidf("weight must be positive, got %g", opts.Weight)
	}
	if opts.MaxIter <= 0 {
		return nil, invalidf("max iterations must be positive, got %d", opts.MaxIter)
	}
	if opts.Multichannel && img.NDim() < 2 {
		return nil, invalidf("multichannel image needs at least 2 axes, got shape %v", img.Shape)
	}

	work := imgconv.AsFloat(img)
	layout := models.LayoutOf(work, opts.Multichannel)
	if !layout.IsMultichannel() {
		out := chambolle(work, opts.Weight, opts.Eps, opts.MaxIter)
		imgconv.Quantize(out)
		return out, nil
	}

	out := models.New(work.DType, work.Shape...)
	for c := 0; c < layout.Channels(); c++ {
		ch := chambolle(work.Channel(c), opts.Weight, opts.Eps, opts.MaxIter)
		if err := out.SetChannel(c, ch); err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
	}
	imgconv.Quantize(out)
	return out, nil
}

// chambolle iterates the dual projection p <- (p - tau*grad(u)) /
// (1 + tau/weight*|grad(u)|) with u = f - div(p), stopping once the energy
// settles.
func chambolle(img *models.Image, weight, eps float64, maxIter int) *models.Image {
	ndim := img.NDim()
	n := img.Size()
	p := make([][]float64, ndim)
	g := make([][]float64, ndim)
	for ax := range p {
		p[ax] = make([]float64, n)
		g[ax] = make([]float64, n)
	}
	d := make([]float64, n)
	norm := make([]float64, n)
	tau := 1 / (2 * float64(ndim))

	out := img.Clone()
	var energyInit, energyPrev float64
	for i := 0; i < maxIter; i++ {
		if i > 0 {
			divergence(p, img.Shape, d)
			for k, v := range img.Data {
				out.Data[k] = v + d[k]
			}
		}

		var energy float64
		for _, v := range d {
			energy += v * v
		}

		for ax := 0; ax < ndim; ax++ {
			gradient(out.Data, img.Shape, ax, g[ax])
		}
		for k := range norm {
			var s float64
			for ax := 0; ax < ndim; ax++ {
				s += g[ax][k] * g[ax][k]
			}
			norm[k] = math.Sqrt(s)
			energy += weight * norm[k]
			norm[k] = 1 + norm[k]*tau/weight
		}
		for ax := 0; ax < ndim; ax++ {
			for k := range norm {
				p[ax][k] = (p[ax][k] - tau*g[ax][k]) / norm[k]
			}
		}

		energy /= float64(n)
		if i == 0 {
			energyInit, energyPrev = energy, energy
			continue
		}
		if math.Abs(energyPrev-energy) < eps*energyInit {
			break
		}
		energyPrev = energy
	}
	return out
}

// gradient writes the forward difference of data along axis into g; the
// last sample of every lane gets zero.
func gradient(data []float64, shape []int, axis int, g []float64) {
	n := shape[axis]
	models.ForEachLane(shape, axis, func(base, stride int) {
		for k := 0; k < n-1; k++ {
			i := base + k*stride
			g[i] = data[i+stride] - data[i]
		}
		g[base+(n-1)*stride] = 0
	})
}

// divergence writes -div(p), the adjoint of gradient, into d.
func divergence(p [][]float64, shape []int, d []float64) {
	for k := range d {
		var s float64
		for ax := range p {
			s += p[ax][k]
		}
		d[k] = -s
	}
	for ax := range p {
		n := shape[ax]
		models.ForEachLane(shape, ax, func(base, stride int) {
			for k := 0; k < n-1; k++ {
				i := base + k*stride
				d[i+stride] += p[ax][i]
			}
		})
	}
}
