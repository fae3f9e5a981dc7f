// Package metrics compares a restored image against a reference.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"imrestore/internal/models"
)

// ErrDataRange is returned when PSNR cannot infer the data range because
// the reference exceeds the nominal range of its dtype.
var ErrDataRange = errors.New("metrics: reference outside the range of its dtype; give the data range explicitly")

func sameShape(ref, test *models.Image) error {
	if !ref.SameShape(test) {
		return fmt.Errorf("%w: %v vs %v", models.ErrShapeMismatch, ref.Shape, test.Shape)
	}
	if ref.Size() == 0 {
		return fmt.Errorf("%w: empty image", models.ErrShapeMismatch)
	}
	return nil
}

// MSE is the mean squared error between ref and test.
func MSE(ref, test *models.Image) (float64, error) {
	if err := sameShape(ref, test); err != nil {
		return 0, err
	}
	var sum float64
	for i, v := range ref.Data {
		d := v - test.Data[i]
		sum += d * d
	}
	return sum / float64(ref.Size()), nil
}

// RMSE is the root mean squared error between ref and test.
func RMSE(ref, test *models.Image) (float64, error) {
	mse, err := MSE(ref, test)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// PSNR is the peak signal-to-noise ratio of test against ref, in dB. A
// dataRange of 0 derives it from ref's dtype: the dtype maximum when ref
// is non-negative, the full dtype span otherwise. Float images count as
// [-1, 1]. Identical images give +Inf.
func PSNR(ref, test *models.Image, dataRange float64) (float64, error) {
	if err := sameShape(ref, test); err != nil {
		return 0, err
	}
	if dataRange == 0 {
		low, high := ref.DType.Limits()
		refMin, refMax := floats.Min(ref.Data), floats.Max(ref.Data)
		if refMin < low || refMax > high {
			return 0, fmt.Errorf("%w: [%g, %g] for %s", ErrDataRange, refMin, refMax, ref.DType)
		}
		dataRange = high
		if refMin < 0 {
			dataRange = high - low
		}
	}
	mse, err := MSE(ref, test)
	if err != nil {
		return 0, err
	}
	return 10 * math.Log10(dataRange*dataRange/mse), nil
}

// SSIM is the structural similarity of ref and test computed from global
// statistics rather than a sliding window. dataRange 0 means 1.
func SSIM(ref, test *models.Image, dataRange float64) (float64, error) {
	if err := sameShape(ref, test); err != nil {
		return 0, err
	}
	if dataRange == 0 {
		dataRange = 1
	}
	const k1, k2 = 0.01, 0.03
	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	muX := stat.Mean(ref.Data, nil)
	muY := stat.Mean(test.Data, nil)
	sigmaX := stat.Variance(ref.Data, nil)
	sigmaY := stat.Variance(test.Data, nil)
	sigmaXY := stat.Covariance(ref.Data, test.Data, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den, nil
	}
	return 0, nil
}

// TotalVariation is the anisotropic total variation of im: the sum of
// absolute forward differences along every axis.
func TotalVariation(im *models.Image) float64 {
	var tv float64
	strides := im.Strides()
	for ax, n := range im.Shape {
		stride := strides[ax]
		models.ForEachLane(im.Shape, ax, func(base, _ int) {
			for k := 0; k < n-1; k++ {
				i := base + k*stride
				tv += math.Abs(im.Data[i+stride] - im.Data[i])
			}
		})
	}
	return tv
}

// Entropy is the Shannon entropy, in bits, of a 256-bin histogram of im.
func Entropy(im *models.Image) float64 {
	const numBins = 256
	low, high := floats.Min(im.Data), floats.Max(im.Data)
	if high <= low {
		return 0
	}

	hist := make([]float64, numBins)
	binWidth := (high - low) / numBins
	for _, v := range im.Data {
		bin := int((v - low) / binWidth)
		if bin >= numBins {
			bin = numBins - 1
		} else if bin < 0 {
			bin = 0
		}
		hist[bin]++
	}

	n := float64(im.Size())
	var entropy float64
	for _, count := range hist {
		if count > 0 {
			p := count / n
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
