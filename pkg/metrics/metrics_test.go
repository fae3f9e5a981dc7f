package metrics

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imrestore/internal/models"
	"imrestore/internal/testimages"
)

func image(t *testing.T, dtype models.DType, data []float64, shape ...int) *models.Image {
	t.Helper()
	im, err := models.FromData(data, dtype, shape...)
	require.NoError(t, err)
	return im
}

func TestMSE(t *testing.T) {
	ref := image(t, models.Float64, []float64{0, 0, 0, 0}, 2, 2)
	test := image(t, models.Float64, []float64{1, -1, 0, 2}, 2, 2)
	mse, err := MSE(ref, test)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, mse, 1e-12)

	rmse, err := RMSE(ref, test)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(1.5), rmse, 1e-12)

	_, err = MSE(ref, image(t, models.Float64, []float64{1, 2}, 2))
	assert.True(t, errors.Is(err, models.ErrShapeMismatch))
}

func TestPSNR(t *testing.T) {
	tests := []struct {
		name string
		ref  *models.Image
		test *models.Image
		rng  float64
		want float64
	}{
		{
			name: "float non-negative uses range 1",
			ref:  image(t, models.Float64, []float64{0, 0.5, 1, 0.5}, 4),
			test: image(t, models.Float64, []float64{0.1, 0.5, 1, 0.5}, 4),
			want: 10 * math.Log10(1/(0.01/4)),
		},
		{
			name: "float with negatives uses range 2",
			ref:  image(t, models.Float64, []float64{-0.5, 0.5, 1, 0.5}, 4),
			test: image(t, models.Float64, []float64{-0.4, 0.5, 1, 0.5}, 4),
			want: 10 * math.Log10(4/(0.01/4)),
		},
		{
			name: "uint8 uses 255",
			ref:  image(t, models.Uint8, []float64{0, 100, 200, 255}, 4),
			test: image(t, models.Uint8, []float64{2, 100, 200, 255}, 4),
			want: 10 * math.Log10(255*255/(4.0/4)),
		},
		{
			name: "explicit range",
			ref:  image(t, models.Float64, []float64{0, 10}, 2),
			test: image(t, models.Float64, []float64{1, 10}, 2),
			rng:  10,
			want: 10 * math.Log10(100/0.5),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PSNR(tt.ref, tt.test, tt.rng)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPSNRIdenticalIsInfinite(t *testing.T) {
	ref := testimages.Phantom(16, 16)
	got, err := PSNR(ref, ref.Clone(), 0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1))
}

func TestPSNROutOfRange(t *testing.T) {
	ref := image(t, models.Float64, []float64{0, 10}, 2)
	_, err := PSNR(ref, ref.Clone(), 0)
	assert.True(t, errors.Is(err, ErrDataRange))
}

func TestSSIM(t *testing.T) {
	ref := testimages.Phantom(32, 32)
	same, err := SSIM(ref, ref.Clone(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, same, 1e-12)

	noisy := testimages.AddGaussianNoise(ref, 0.2, 1)
	worse, err := SSIM(ref, noisy, 1)
	require.NoError(t, err)
	assert.Less(t, worse, same)
}

func TestTotalVariation(t *testing.T) {
	step := image(t, models.Float64, []float64{
		0, 0, 1,
		0, 0, 1,
	}, 2, 3)
	assert.InDelta(t, 2, TotalVariation(step), 1e-12)

	flat := models.New(models.Float64, 4, 4, 4)
	assert.Zero(t, TotalVariation(flat))
}

func TestEntropy(t *testing.T) {
	half := image(t, models.Float64, []float64{0, 0, 1, 1}, 4)
	assert.InDelta(t, 1, Entropy(half), 1e-12)
	assert.Zero(t, Entropy(models.New(models.Float64, 8)))
}

func naiveDFT(data []float64, rows, cols int) []complex128 {
	out := make([]complex128, rows*cols)
	for u := 0; u < rows; u++ {
		for v := 0; v < cols; v++ {
			var s complex128
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					phase := -2 * math.Pi * (float64(u*r)/float64(rows) + float64(v*c)/float64(cols))
					s += complex(data[r*cols+c], 0) * cmplx.Exp(complex(0, phase))
				}
			}
			out[u*cols+v] = s
		}
	}
	return out
}

func TestSpectrumMatchesDirectDFT(t *testing.T) {
	for _, shape := range [][2]int{{4, 6}, {5, 7}, {8, 8}} {
		im := testimages.AddGaussianNoise(models.New(models.Float64, shape[0], shape[1]), 1, 3)
		got := spectrum2D(im.Data, shape[0], shape[1])
		want := naiveDFT(im.Data, shape[0], shape[1])
		approx := cmp.Comparer(func(a, b complex128) bool { return cmplx.Abs(a-b) < 1e-9 })
		if diff := cmp.Diff(want, got, approx); diff != "" {
			t.Errorf("spectrum of %v mismatch (-want +got):\n%s", shape, diff)
		}
	}
}

func TestHighFrequencyEnergy(t *testing.T) {
	constant := models.New(models.Float64, 16, 16)
	for i := range constant.Data {
		constant.Data[i] = 0.5
	}
	got, err := HighFrequencyEnergy(constant, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0, got, 1e-12)

	// Alternating pixels put everything at the Nyquist frequency.
	nyquist := testimages.Checkerboard(16, 16, 1)
	for i := range nyquist.Data {
		nyquist.Data[i] -= 0.5
	}
	got, err = HighFrequencyEnergy(nyquist, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 1, got, 1e-9)

	smooth := testimages.Phantom(32, 32)
	noisy := testimages.AddGaussianNoise(smooth, 0.1, 7)
	hfSmooth, err := HighFrequencyEnergy(smooth, 0.25)
	require.NoError(t, err)
	hfNoisy, err := HighFrequencyEnergy(noisy, 0.25)
	require.NoError(t, err)
	assert.Greater(t, hfNoisy, hfSmooth)

	_, err = HighFrequencyEnergy(models.New(models.Float64, 4), 0.25)
	assert.Error(t, err)
	_, err = HighFrequencyEnergy(smooth, 0.5)
	assert.Error(t, err)
}
