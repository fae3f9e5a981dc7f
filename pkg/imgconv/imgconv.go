// Package imgconv maps images between their storage dtype and the
// canonical floating-point range the denoisers work in.
package imgconv

import (
	"math"

	"imrestore/internal/models"
)

// Scale returns the factor AsFloat multiplies samples of dtype d by. It
// depends on the dtype only, so a constant image stays constant and no
// division by a data range can occur.
func Scale(d models.DType) float64 {
	if d.IsFloat() {
		return 1
	}
	_, high := d.Limits()
	return 1 / high
}

// ResultDType is the float dtype a denoiser returns for input dtype d.
func ResultDType(d models.DType) models.DType {
	switch d {
	case models.Float32, models.Float16:
		return models.Float32
	}
	return models.Float64
}

// AsFloat converts im to its floating-point representation. Unsigned
// integers land in [0, 1] and signed integers in [-1, 1]; float images keep
// their values, float16 being promoted to float32.
func AsFloat(im *models.Image) *models.Image {
	out := im.Clone()
	out.DType = ResultDType(im.DType)
	if im.DType.IsFloat() {
		Quantize(out)
		return out
	}
	scale := Scale(im.DType)
	for i, v := range out.Data {
		v *= scale
		if v < -1 {
			v = -1
		}
		out.Data[i] = v
	}
	return out
}

// Quantize rounds samples to the precision of im.DType.
func Quantize(im *models.Image) {
	if im.DType != models.Float32 && im.DType != models.Float16 {
		return
	}
	for i, v := range im.Data {
		im.Data[i] = float64(float32(v))
	}
}

// Clip limits every sample to [lo, hi]. NaN samples are left alone.
func Clip(im *models.Image, lo, hi float64) {
	for i, v := range im.Data {
		if v < lo {
			im.Data[i] = lo
		} else if v > hi {
			im.Data[i] = hi
		}
	}
}

// ClipRange is the output range for a normalized image: [-1, 1] when it
// holds negative samples so that their sign survives, [0, 1] otherwise.
func ClipRange(normalized *models.Image) (float64, float64) {
	if normalized.Min() < 0 {
		return -1, 1
	}
	return 0, 1
}

// RestoreRange maps a normalized image back to the units of dtype d,
// rounding to the nearest representable integer. The result keeps float
// storage with DType d.
func RestoreRange(im *models.Image, d models.DType) *models.Image {
	out := im.Clone()
	out.DType = d
	if d.IsFloat() {
		Quantize(out)
		return out
	}
	low, high := d.Limits()
	scale := 1 / Scale(d)
	for i, v := range out.Data {
		v = math.Round(v * scale)
		out.Data[i] = math.Max(low, math.Min(high, v))
	}
	return out
}
