// Package colorspace converts between RGB and the YCbCr luma/chroma space
// (ITU-R BT.601, studio swing: Y in [16, 235], Cb/Cr in [16, 240] for RGB
// in [0, 1]).
package colorspace

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"imrestore/internal/models"
)

// ErrChannelCount is returned when an image does not have exactly three
// channels on its last axis.
var ErrChannelCount = errors.New("colorspace: luma/chroma conversion needs exactly 3 channels")

var (
	ycbcrFromRGB = mat.NewDense(3, 3, []float64{
		65.481, 128.553, 24.966,
		-37.797, -74.203, 112.0,
		112.0, -93.786, -18.214,
	})
	ycbcrOffset = []float64{16, 128, 128}

	rgbFromYCbCr = func() *mat.Dense {
		var inv mat.Dense
		if err := inv.Inverse(ycbcrFromRGB); err != nil {
			panic(fmt.Sprintf("colorspace: singular YCbCr matrix: %v", err))
		}
		return &inv
	}()
)

func pixels(im *models.Image) (*mat.Dense, error) {
	if im.NDim() < 2 || im.Shape[im.NDim()-1] != 3 {
		return nil, fmt.Errorf("%w: shape %v", ErrChannelCount, im.Shape)
	}
	return mat.NewDense(im.Size()/3, 3, im.Data), nil
}

// RGBToYCbCr converts an RGB image, channels last, to YCbCr.
func RGBToYCbCr(im *models.Image) (*models.Image, error) {
	src, err := pixels(im)
	if err != nil {
		return nil, err
	}
	out := models.New(models.Float64, im.Shape...)
	dst := mat.NewDense(im.Size()/3, 3, out.Data)
	dst.Mul(src, ycbcrFromRGB.T())
	for i := range out.Data {
		out.Data[i] += ycbcrOffset[i%3]
	}
	return out, nil
}

// YCbCrToRGB inverts RGBToYCbCr.
func YCbCrToRGB(im *models.Image) (*models.Image, error) {
	if _, err := pixels(im); err != nil {
		return nil, err
	}
	shifted := im.Clone()
	for i := range shifted.Data {
		shifted.Data[i] -= ycbcrOffset[i%3]
	}
	src := mat.NewDense(im.Size()/3, 3, shifted.Data)
	out := models.New(models.Float64, im.Shape...)
	dst := mat.NewDense(im.Size()/3, 3, out.Data)
	dst.Mul(src, rgbFromYCbCr.T())
	return out, nil
}

// RescaleSigma maps per-channel RGB noise standard deviations to the
// standard deviations of independent noise after RGBToYCbCr.
func RescaleSigma(rgb []float64) ([]float64, error) {
	if len(rgb) != 3 {
		return nil, fmt.Errorf("%w: got %d sigmas", ErrChannelCount, len(rgb))
	}
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		var v float64
		for j := 0; j < 3; j++ {
			m := ycbcrFromRGB.At(i, j)
			v += m * m * rgb[j] * rgb[j]
		}
		out[i] = math.Sqrt(v)
	}
	return out, nil
}
