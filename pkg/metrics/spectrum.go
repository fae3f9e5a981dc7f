package metrics

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"imrestore/internal/models"
)

// spectrum2D returns the full 2-D DFT of a rows x cols real image in
// row-major order: real FFTs along rows, completed by conjugate symmetry,
// then complex FFTs along columns.
func spectrum2D(data []float64, rows, cols int) []complex128 {
	result := make([]complex128, rows*cols)

	rowFFT := fourier.NewFFT(cols)
	half := make([]complex128, cols/2+1)
	for r := 0; r < rows; r++ {
		rowFFT.Coefficients(half, data[r*cols:(r+1)*cols])
		row := result[r*cols : (r+1)*cols]
		copy(row, half)
		for j := len(half); j < cols; j++ {
			row[j] = cmplx.Conj(half[cols-j])
		}
	}

	colFFT := fourier.NewCmplxFFT(rows)
	col := make([]complex128, rows)
	coeffs := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = result[r*cols+c]
		}
		colFFT.Coefficients(coeffs, col)
		for r := 0; r < rows; r++ {
			result[r*cols+c] = coeffs[r]
		}
	}
	return result
}

// HighFrequencyEnergy is the share of the spectral energy of a 2-D image
// at frequencies above cutoff cycles per sample on either axis. cutoff
// must lie in (0, 0.5). A zero image has no energy and yields 0.
func HighFrequencyEnergy(im *models.Image, cutoff float64) (float64, error) {
	if im.NDim() != 2 {
		return 0, fmt.Errorf("%w: spectral energy needs a 2-D image, got %v", models.ErrShapeMismatch, im.Shape)
	}
	if cutoff <= 0 || cutoff >= 0.5 {
		return 0, fmt.Errorf("metrics: cutoff %g outside (0, 0.5)", cutoff)
	}
	rows, cols := im.Shape[0], im.Shape[1]
	spec := spectrum2D(im.Data, rows, cols)

	var total, high float64
	for r := 0; r < rows; r++ {
		fy := math.Abs(signedFreq(r, rows))
		for c := 0; c < cols; c++ {
			fx := math.Abs(signedFreq(c, cols))
			p := sq(cmplx.Abs(spec[r*cols+c]))
			total += p
			if math.Max(fx, fy) > cutoff {
				high += p
			}
		}
	}
	if total == 0 {
		return 0, nil
	}
	return high / total, nil
}

// signedFreq maps DFT bin k of n to cycles per sample in [-0.5, 0.5).
func signedFreq(k, n int) float64 {
	if k >= (n+1)/2 {
		k -= n
	}
	return float64(k) / float64(n)
}

func sq(v float64) float64 { return v * v }
