// Package testimages builds deterministic synthetic images and noise for
// tests and benchmarks.
package testimages

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"imrestore/internal/models"
)

// Phantom returns a rows x cols grayscale image in [0, 1]: a horizontal
// intensity ramp carrying an ellipse, a rectangle and a small disc.
func Phantom(rows, cols int) *models.Image {
	im := models.New(models.Float64, rows, cols)
	fr, fc := float64(rows), float64(cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			y, x := float64(r)/fr, float64(c)/fc
			v := 0.3 + 0.2*x
			if sq((x-0.45)/0.3)+sq((y-0.5)/0.22) < 1 {
				v = 0.8
			}
			if x > 0.1 && x < 0.3 && y > 0.1 && y < 0.35 {
				v = 0.1
			}
			if sq(x-0.75)+sq(y-0.75) < sq(0.1) {
				v = 0.6
			}
			im.Data[r*cols+c] = v
		}
	}
	return im
}

// PhantomRGB returns a rows x cols x 3 color image in [0, 1] whose channels
// carry different structure.
func PhantomRGB(rows, cols int) *models.Image {
	gray := Phantom(rows, cols)
	im := models.New(models.Float64, rows, cols, 3)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g := gray.Data[r*cols+c]
			i := (r*cols + c) * 3
			im.Data[i] = g
			im.Data[i+1] = 0.9 - 0.7*g
			im.Data[i+2] = 0.5 + 0.3*math.Sin(2*math.Pi*float64(r)/float64(rows))*g
		}
	}
	return im
}

// Checkerboard returns alternating cell x cell squares of 1 and 0, the top
// left square being 1.
func Checkerboard(rows, cols, cell int) *models.Image {
	im := models.New(models.Float64, rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if (r/cell+c/cell)%2 == 0 {
				im.Data[r*cols+c] = 1
			}
		}
	}
	return im
}

// GrayToRGB repeats a grayscale image into three channels.
func GrayToRGB(gray *models.Image) *models.Image {
	shape := append(append([]int(nil), gray.Shape...), 3)
	im := models.New(gray.DType, shape...)
	for i, v := range gray.Data {
		im.Data[3*i], im.Data[3*i+1], im.Data[3*i+2] = v, v, v
	}
	return im
}

// Block returns an n^ndim image of 0.2 with the cube [5, 13)^ndim set to
// 0.8.
func Block(ndim, n int) *models.Image {
	shape := make([]int, ndim)
	for i := range shape {
		shape[i] = n
	}
	im := models.New(models.Float64, shape...)
	strides := im.Strides()
	for i := range im.Data {
		inside := true
		for _, s := range strides {
			k := i / s % n
			inside = inside && k >= 5 && k < 13
		}
		im.Data[i] = 0.2
		if inside {
			im.Data[i] = 0.8
		}
	}
	return im
}

// Ramp returns n samples evenly spaced over [0, high].
func Ramp(n int, high float64) *models.Image {
	im := models.New(models.Float64, n)
	for i := range im.Data {
		im.Data[i] = high * float64(i) / float64(n-1)
	}
	return im
}

// Rand returns a deterministic source for seed.
func Rand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
}

// AddGaussianNoise returns a copy of im with N(0, sigma^2) noise added.
func AddGaussianNoise(im *models.Image, sigma float64, seed uint64) *models.Image {
	rng := Rand(seed)
	out := im.Clone()
	for i := range out.Data {
		out.Data[i] += sigma * rng.NormFloat64()
	}
	return out
}

// AddUniformNoise returns a copy of im with noise drawn from [0, amp).
func AddUniformNoise(im *models.Image, amp float64, seed uint64) *models.Image {
	rng := Rand(seed)
	out := im.Clone()
	for i := range out.Data {
		out.Data[i] += amp * rng.Float64()
	}
	return out
}

// Clip limits every sample of im to [low, high] in place and returns im.
func Clip(im *models.Image, low, high float64) *models.Image {
	for i, v := range im.Data {
		im.Data[i] = math.Max(low, math.Min(high, v))
	}
	return im
}

// AsDType converts a [0, 1] float image to the integer units of dtype,
// rounding and saturating.
func AsDType(im *models.Image, dtype models.DType) *models.Image {
	out := im.Clone()
	out.DType = dtype
	if dtype.IsFloat() {
		return out
	}
	low, high := dtype.Limits()
	for i, v := range out.Data {
		out.Data[i] = math.Max(low, math.Min(high, math.Round(v*high)))
	}
	return out
}

// Std is the population standard deviation of im.
func Std(im *models.Image) float64 {
	_, std := stat.PopMeanStdDev(im.Data, nil)
	return std
}

// Region copies rows [r0, r1) and cols [c0, c1) of a 2-D image, all
// channels included.
func Region(im *models.Image, r0, r1, c0, c1 int) *models.Image {
	cols := im.Shape[1]
	nc := 1
	if im.NDim() == 3 {
		nc = im.Shape[2]
	}
	out := make([]float64, 0, (r1-r0)*(c1-c0)*nc)
	for r := r0; r < r1; r++ {
		out = append(out, im.Data[(r*cols+c0)*nc:(r*cols+c1)*nc]...)
	}
	shape := []int{r1 - r0, c1 - c0}
	if im.NDim() == 3 {
		shape = append(shape, nc)
	}
	region, _ := models.FromData(out, im.DType, shape...)
	return region
}

func sq(v float64) float64 { return v * v }
