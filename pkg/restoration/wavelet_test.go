package restoration

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imrestore/internal/models"
	"imrestore/internal/testimages"
	"imrestore/pkg/imgconv"
	"imrestore/pkg/wavelet"
)

func waveletOpts(mutate func(*WaveletOptions)) WaveletOptions {
	opts := DefaultWaveletOptions()
	opts.Reporter = &Recorder{}
	if mutate != nil {
		mutate(&opts)
	}
	return opts
}

func TestDenoiseWavelet(t *testing.T) {
	gray := testimages.Phantom(128, 128)
	rgb := testimages.PhantomRGB(128, 128)
	tests := []struct {
		name         string
		img          *models.Image
		multichannel bool
		ycbcr        bool
	}{
		{"gray", gray, false, false},
		{"gray odd", testimages.Region(gray, 0, 128, 0, 127), false, false},
		{"color odd", testimages.Region(rgb, 0, 128, 0, 127), true, false},
		{"color odd ycbcr", testimages.Region(rgb, 0, 128, 0, 127), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const sigma = 0.1
			noisyImg := noisy(tt.img, sigma, 1234)
			psnrNoisy := psnr(t, tt.img, noisyImg)
			opts := waveletOpts(func(o *WaveletOptions) {
				o.Multichannel = tt.multichannel
				o.ConvertToYCbCr = tt.ycbcr
			})

			withSigma := opts
			withSigma.Sigma = []float64{sigma}
			denoised, err := DenoiseWavelet(noisyImg, true, withSigma)
			require.NoError(t, err)
			assert.Greater(t, psnr(t, tt.img, denoised), psnrNoisy, "known sigma")

			estimated, err := DenoiseWavelet(noisyImg, true, opts)
			require.NoError(t, err)
			psnrEstimated := psnr(t, tt.img, estimated)
			assert.Greater(t, psnrEstimated, psnrNoisy, "estimated sigma")

			oneLevel := opts
			oneLevel.Levels = ptr(1)
			denoised1, err := DenoiseWavelet(noisyImg, true, oneLevel)
			require.NoError(t, err)
			psnr1 := psnr(t, tt.img, denoised1)
			assert.Greater(t, psnrEstimated, psnr1, "default depth beats one level")
			assert.Greater(t, psnr1, psnrNoisy)
		})
	}
}

func TestDenoiseWaveletLargerSigmaRemovesMoreEnergy(t *testing.T) {
	noisyImg := noisy(testimages.Phantom(64, 64), 0.1, 1234)
	for _, multichannel := range []bool{false, true} {
		img := noisyImg
		if multichannel {
			img = testimages.GrayToRGB(noisyImg)
		}
		res1, err := DenoiseWavelet(img, true, waveletOpts(func(o *WaveletOptions) {
			o.Sigma = []float64{0.2}
			o.Multichannel = multichannel
		}))
		require.NoError(t, err)
		res2, err := DenoiseWavelet(img, true, waveletOpts(func(o *WaveletOptions) {
			o.Sigma = []float64{0.1}
			o.Multichannel = multichannel
		}))
		require.NoError(t, err)
		assert.LessOrEqual(t, energy(res1), energy(res2))
	}
}

func energy(im *models.Image) float64 {
	var e float64
	for _, v := range im.Data {
		e += v * v
	}
	return e
}

func TestDenoiseWaveletND(t *testing.T) {
	for _, rescale := range []bool{true, false} {
		for _, method := range []ThresholdMethod{VisuShrink, BayesShrink} {
			for ndim := 1; ndim <= 4; ndim++ {
				t.Run(fmt.Sprintf("%s/%dd/rescale=%t", method, ndim, rescale), func(t *testing.T) {
					n := map[int]int{1: 1024, 2: 128, 3: 16, 4: 16}[ndim]
					img := testimages.Block(ndim, n)
					noisyImg := noisy(img, 0.1, 1234)
					denoised, err := DenoiseWavelet(noisyImg, rescale, waveletOpts(func(o *WaveletOptions) {
						o.Method = method
					}))
					require.NoError(t, err)
					assert.Greater(t, psnr(t, img, denoised), psnr(t, img, noisyImg))
				})
			}
		}
	}
}

// TestDenoiseWaveletScaling runs images in the units of their dtype rather
// than pre-normalized ones.
func TestDenoiseWaveletScaling(t *testing.T) {
	dtypes := []models.DType{models.Float16, models.Float32, models.Float64, models.Int16, models.Uint8}
	cases := map[string]*models.Image{
		"1d":              testimages.Ramp(1024, 255),
		"2d multichannel": scaled(testimages.PhantomRGB(64, 64), 255),
	}
	for name, base := range cases {
		for _, dtype := range dtypes {
			for _, ycbcr := range []bool{true, false} {
				for _, estimate := range []bool{true, false} {
					label := fmt.Sprintf("%s/%s/ycbcr=%t/estimate=%t", name, dtype, ycbcr, estimate)
					t.Run(label, func(t *testing.T) {
						x := castTo(base, dtype)
						low, high := x.Min(), x.Max()
						noisyImg := testimages.AddGaussianNoise(x, 25, 1234)
						testimages.Clip(noisyImg, low, high)
						noisyImg = castTo(noisyImg, dtype)

						multichannel := x.Shape[x.NDim()-1] == 3
						var sigma []float64
						if estimate {
							var err error
							sigma, err = EstimateSigma(noisyImg, EstimateOptions{Multichannel: multichannel})
							require.NoError(t, err)
						}
						opts := waveletOpts(func(o *WaveletOptions) {
							o.Sigma = sigma
							o.Wavelet = "sym4"
							o.Multichannel = multichannel
							o.ConvertToYCbCr = ycbcr
						})

						denoised, err := DenoiseWavelet(noisyImg, true, opts)
						if ycbcr && !multichannel {
							assert.True(t, errors.Is(err, ErrInvalidArgument))
							return
						}
						require.NoError(t, err)

						dataRange := high - low
						psnrNoisy := psnrRange(t, x, noisyImg, dataRange)
						var psnrDenoised float64
						if dtype.IsFloat() {
							psnrDenoised = psnrRange(t, x, denoised, dataRange)
							assert.Greater(t, denoised.Max(), 0.9*high)
						} else {
							ref := imgconv.AsFloat(x)
							psnrDenoised = psnrRange(t, ref, denoised, ref.Max()-ref.Min())
							assert.LessOrEqual(t, denoised.Max(), 1.0)
							assert.GreaterOrEqual(t, denoised.Min(), 0.0)
						}
						assert.Greater(t, psnrDenoised, psnrNoisy)
						assert.Equal(t, imgconv.ResultDType(dtype), denoised.DType)
					})
				}
			}
		}
	}
}

func scaled(im *models.Image, k float64) *models.Image {
	out := im.Clone()
	for i := range out.Data {
		out.Data[i] *= k
	}
	return out
}

// castTo stores im's values in dtype the way a numeric conversion would:
// integers are rounded and saturated, float32 and float16 lose precision.
func castTo(im *models.Image, dtype models.DType) *models.Image {
	out := im.Clone()
	out.DType = dtype
	if dtype.IsFloat() {
		imgconv.Quantize(out)
		return out
	}
	low, high := dtype.Limits()
	for i, v := range out.Data {
		out.Data[i] = math.Max(low, math.Min(high, math.Round(v)))
	}
	return out
}

func TestDenoiseWaveletLevels(t *testing.T) {
	for _, rescale := range []bool{true, false} {
		t.Run(fmt.Sprintf("rescale=%t", rescale), func(t *testing.T) {
			img := testimages.Block(2, 256)
			noisyImg := noisy(img, 0.1, 1234)

			denoised, err := DenoiseWavelet(noisyImg, rescale, waveletOpts(nil))
			require.NoError(t, err)
			denoised1, err := DenoiseWavelet(noisyImg, rescale, waveletOpts(func(o *WaveletOptions) { o.Levels = ptr(1) }))
			require.NoError(t, err)

			psnrNoisy := psnr(t, img, noisyImg)
			psnrDefault := psnr(t, img, denoised)
			psnr1 := psnr(t, img, denoised1)
			assert.Greater(t, psnrDefault, psnr1)
			assert.Greater(t, psnr1, psnrNoisy)

			w, err := wavelet.Lookup("db1")
			require.NoError(t, err)
			maxLevel := wavelet.MaxLevel(256, w.DecLen())

			rec := &Recorder{}
			_, err = DenoiseWavelet(noisyImg, rescale, waveletOpts(func(o *WaveletOptions) {
				o.Levels = ptr(maxLevel + 1)
				o.Reporter = rec
			}))
			require.NoError(t, err)
			require.True(t, rec.Has(WarnBoundaryEffects))
			assert.Contains(t, rec.Warnings()[0].Message, "all coefficients will experience boundary effects")

			_, err = DenoiseWavelet(noisyImg, rescale, waveletOpts(func(o *WaveletOptions) {
				o.Levels = ptr(maxLevel + 1)
				o.StrictLevels = true
			}))
			assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))

			_, err = DenoiseWavelet(noisyImg, rescale, waveletOpts(func(o *WaveletOptions) { o.Levels = ptr(-1) }))
			assert.True(t, errors.Is(err, ErrInvalidArgument))
		})
	}
}

func TestDenoiseWaveletInvalidArguments(t *testing.T) {
	rgb := testimages.PhantomRGB(32, 32)
	gray := testimages.Phantom(32, 32)
	tests := []struct {
		name string
		img  *models.Image
		opts WaveletOptions
	}{
		{"unknown method", models.New(models.Float64, 16), waveletOpts(func(o *WaveletOptions) { o.Method = "Unimplemented" })},
		{"ycbcr without multichannel", rgb, waveletOpts(func(o *WaveletOptions) { o.ConvertToYCbCr = true })},
		{"ycbcr with four channels", models.New(models.Float64, 8, 8, 4), waveletOpts(func(o *WaveletOptions) {
			o.ConvertToYCbCr = true
			o.Multichannel = true
		})},
		{"sigma list without multichannel", gray, waveletOpts(func(o *WaveletOptions) { o.Sigma = []float64{0.1, 0.1, 0.1} })},
		{"sigma list wrong length", rgb, waveletOpts(func(o *WaveletOptions) {
			o.Sigma = []float64{0.1, 0.1}
			o.Multichannel = true
		})},
		{"negative sigma", gray, waveletOpts(func(o *WaveletOptions) { o.Sigma = []float64{-1} })},
		{"no method and no threshold", gray, waveletOpts(func(o *WaveletOptions) { o.Method = MethodNone })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DenoiseWavelet(tt.img, true, tt.opts)
			assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
		})
	}
}

// TestDenoiseWaveletArgs checks every valid combination of color handling
// and sigma form is accepted.
func TestDenoiseWaveletArgs(t *testing.T) {
	img := noisy(testimages.PhantomRGB(64, 64), 0.1, 5)
	for _, rescale := range []bool{true, false} {
		for _, ycbcr := range []bool{true, false} {
			for _, sigma := range [][]float64{{0.1}, {0.1, 0.1, 0.1}, nil} {
				_, err := DenoiseWavelet(img, rescale, waveletOpts(func(o *WaveletOptions) {
					o.Multichannel = true
					o.ConvertToYCbCr = ycbcr
					o.Sigma = sigma
				}))
				assert.NoError(t, err, "rescale=%t ycbcr=%t sigma=%v", rescale, ycbcr, sigma)
			}
		}
	}
}

func TestDenoiseWaveletBiorthogonalWarns(t *testing.T) {
	for _, rescale := range []bool{true, false} {
		rec := &Recorder{}
		_, err := DenoiseWavelet(testimages.Phantom(64, 64), rescale, waveletOpts(func(o *WaveletOptions) {
			o.Wavelet = "bior2.2"
			o.Reporter = rec
		}))
		require.NoError(t, err)
		assert.True(t, rec.Has(WarnNonOrthogonal))
	}
}

func TestDenoiseWaveletConstantImage(t *testing.T) {
	t.Run("uint8", func(t *testing.T) {
		img := models.New(models.Uint8, 16, 16)
		for i := range img.Data {
			img.Data[i] = 200
		}
		out, err := DenoiseWavelet(img, true, waveletOpts(nil))
		require.NoError(t, err)
		for _, v := range out.Data {
			assert.InDelta(t, 200.0/255, v, 1e-12)
		}
	})
	t.Run("float color", func(t *testing.T) {
		img := models.New(models.Float64, 16, 16, 3)
		for i := range img.Data {
			img.Data[i] = 0.25 * float64(i%3+1)
		}
		for _, ycbcr := range []bool{false, true} {
			out, err := DenoiseWavelet(img, true, waveletOpts(func(o *WaveletOptions) {
				o.Multichannel = true
				o.ConvertToYCbCr = ycbcr
			}))
			require.NoError(t, err)
			assert.InDeltaSlice(t, img.Data, out.Data, 1e-9)
		}
	})
}

func TestDenoiseWaveletSignedInputKeepsSign(t *testing.T) {
	base := testimages.Phantom(64, 64)
	signed := models.New(models.Int16, 64, 64)
	for i, v := range base.Data {
		signed.Data[i] = math.Round((v - 0.5) * 60000)
	}
	out, err := DenoiseWavelet(signed, true, waveletOpts(nil))
	require.NoError(t, err)
	assert.Less(t, out.Min(), 0.0)
	assert.GreaterOrEqual(t, out.Min(), -1.0)
	assert.LessOrEqual(t, out.Max(), 1.0)
}

func TestDenoiseWaveletPreserveRange(t *testing.T) {
	img := castTo(scaled(noisy(testimages.Phantom(32, 32), 0.1, 9), 255), models.Uint8)
	out, err := DenoiseWavelet(img, true, waveletOpts(func(o *WaveletOptions) { o.PreserveRange = true }))
	require.NoError(t, err)
	assert.Equal(t, models.Uint8, out.DType)
	for _, v := range out.Data {
		require.Equal(t, math.Round(v), v)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 255.0)
	}
}

func TestDenoiseWaveletLeavesInputUntouched(t *testing.T) {
	img := noisy(testimages.Phantom(32, 32), 0.1, 4)
	before := img.Clone()
	_, err := DenoiseWavelet(img, true, waveletOpts(func(o *WaveletOptions) { o.Sigma = []float64{0.1} }))
	require.NoError(t, err)
	assert.Equal(t, before.Data, img.Data)
}
