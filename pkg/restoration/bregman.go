package restoration

import (
	"fmt"
	"math"

	"imrestore/internal/models"
	"imrestore/pkg/imgconv"
)

// TVBregmanOptions configures DenoiseTVBregman.
type TVBregmanOptions struct {
	// Weight is the fidelity weight; smaller values smooth more.
	Weight float64

	MaxIter int

	// Eps is the root-mean-square update below which iteration stops.
	Eps float64

	// Isotropic couples the two gradient components; otherwise each is
	// shrunk separately (anisotropic TV).
	Isotropic bool

	Multichannel bool
}

// DefaultTVBregmanOptions returns weight 10, 100 iterations, eps 1e-3 and
// isotropic TV.
func DefaultTVBregmanOptions() TVBregmanOptions {
	return TVBregmanOptions{Weight: 10, MaxIter: 100, Eps: 1e-3, Isotropic: true}
}

// DenoiseTVBregman performs total-variation denoising of a 2-D image, with
// an optional trailing channel axis, using the split Bregman method.
func DenoiseTVBregman(img *models.Image, opts TVBregmanOptions) (*models.Image, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	if opts.Weight <= 0 {
		return nil, invalidf("weight must be positive, got %g", opts.Weight)
	}
	if opts.MaxIter <= 0 {
		return nil, invalidf("max iterations must be positive, got %d", opts.MaxIter)
	}
	want := 2
	if opts.Multichannel {
		want = 3
	}
	if img.NDim() == 3 && !opts.Multichannel {
		return nil, fmt.Errorf("%w: split Bregman TV handles 2-D images, got shape %v; "+
			"set Multichannel if the last axis holds channels", ErrNotImplemented, img.Shape)
	}
	if img.NDim() != want {
		return nil, fmt.Errorf("%w: split Bregman TV handles 2-D images, got shape %v (multichannel=%t)",
			ErrNotImplemented, img.Shape, opts.Multichannel)
	}
	if img.Shape[0] < 2 || img.Shape[1] < 2 {
		return nil, invalidf("split Bregman TV needs at least 2x2 pixels, got shape %v", img.Shape)
	}

	work := imgconv.AsFloat(img)
	if !opts.Multichannel {
		out := bregman(work, opts)
		imgconv.Quantize(out)
		return out, nil
	}

	out := models.New(work.DType, work.Shape...)
	for c := 0; c < work.Shape[2]; c++ {
		if err := out.SetChannel(c, bregman(work.Channel(c), opts)); err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
	}
	imgconv.Quantize(out)
	return out, nil
}

// bregman runs Gauss-Seidel sweeps over u on a grid with a one-pixel ghost
// border, which starts out as a reflection of the image and is then left
// fixed.
func bregman(img *models.Image, opts TVBregmanOptions) *models.Image {
	rows, cols := img.Shape[0], img.Shape[1]
	rows2, cols2 := rows+2, cols+2
	at := func(r, c int) int { return r*cols2 + c }

	n := rows2 * cols2
	u := make([]float64, n)
	dx := make([]float64, n)
	dy := make([]float64, n)
	bx := make([]float64, n)
	by := make([]float64, n)

	f := img.Data
	for r := 0; r < rows; r++ {
		copy(u[at(r+1, 1):at(r+1, cols+1)], f[r*cols:(r+1)*cols])
		u[at(r+1, 0)] = f[r*cols+1]
		u[at(r+1, cols+1)] = f[r*cols+cols-2]
	}
	for c := 0; c < cols; c++ {
		u[at(0, c+1)] = f[cols+c]
		u[at(rows+1, c+1)] = f[(rows-2)*cols+c]
	}

	weight := opts.Weight
	lam := 2 * weight
	norm := weight + 4*lam
	total := float64(rows * cols)

	rmse := math.MaxFloat64
	for i := 0; i < opts.MaxIter && rmse > opts.Eps; i++ {
		rmse = 0
		for r := 1; r <= rows; r++ {
			for c := 1; c <= cols; c++ {
				k := at(r, c)
				prev := u[k]
				ux := u[k+1] - prev
				uy := u[k+cols2] - prev

				next := (lam*(u[k+cols2]+u[k-cols2]+u[k+1]+u[k-1]+
					dx[k-1]-dx[k]+dy[k-cols2]-dy[k]-
					bx[k-1]+bx[k]-by[k-cols2]+by[k]) +
					weight*f[(r-1)*cols+c-1]) / norm
				u[k] = next
				rmse += (next - prev) * (next - prev)

				var dxx, dyy float64
				if opts.Isotropic {
					tx, ty := ux+bx[k], uy+by[k]
					s := math.Sqrt(tx*tx + ty*ty)
					dxx = s * lam * tx / (s*lam + 1)
					dyy = s * lam * ty / (s*lam + 1)
				} else {
					dxx = shrinkL1(ux+bx[k], 1/lam)
					dyy = shrinkL1(uy+by[k], 1/lam)
				}
				dx[k], dy[k] = dxx, dyy
				bx[k] += ux - dxx
				by[k] += uy - dyy
			}
		}
		rmse = math.Sqrt(rmse / total)
	}

	out := models.New(img.DType, rows, cols)
	for r := 0; r < rows; r++ {
		copy(out.Data[r*cols:(r+1)*cols], u[at(r+1, 1):at(r+1, cols+1)])
	}
	return out
}

func shrinkL1(s, t float64) float64 {
	switch {
	case s > t:
		return s - t
	case s < -t:
		return s + t
	}
	return 0
}
