package imgconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imrestore/internal/models"
)

func TestAsFloat(t *testing.T) {
	tests := []struct {
		name  string
		dtype models.DType
		in    []float64
		want  []float64
		out   models.DType
	}{
		{"uint8", models.Uint8, []float64{0, 51, 255}, []float64{0, 0.2, 1}, models.Float64},
		{"int16", models.Int16, []float64{-32768, 0, 32767}, []float64{-1, 0, 1}, models.Float64},
		{"float64 keeps values", models.Float64, []float64{-3, 0.5, 200}, []float64{-3, 0.5, 200}, models.Float64},
		{"float16 promoted", models.Float16, []float64{0.25, 0.5, 1}, []float64{0.25, 0.5, 1}, models.Float32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := models.FromData(append([]float64(nil), tt.in...), tt.dtype, len(tt.in))
			require.NoError(t, err)
			out := AsFloat(im)
			assert.Equal(t, tt.out, out.DType)
			assert.InDeltaSlice(t, tt.want, out.Data, 1e-4)
			assert.Equal(t, tt.in, im.Data, "input untouched")
		})
	}
}

func TestConstantStaysConstant(t *testing.T) {
	im := models.New(models.Uint8, 4, 4)
	for i := range im.Data {
		im.Data[i] = 200
	}
	out := AsFloat(im)
	for _, v := range out.Data {
		assert.Equal(t, out.Data[0], v)
	}
}

func TestClipRangeKeepsSign(t *testing.T) {
	im, _ := models.FromData([]float64{-0.5, 0.2}, models.Float64, 2)
	lo, hi := ClipRange(im)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 1.0, hi)

	im2, _ := models.FromData([]float64{0.1, 1.3}, models.Float64, 2)
	lo, hi = ClipRange(im2)
	Clip(im2, lo, hi)
	assert.Equal(t, []float64{0.1, 1}, im2.Data)
}

func TestRestoreRange(t *testing.T) {
	im, _ := models.FromData([]float64{0, 0.5, 1.2}, models.Float64, 3)
	out := RestoreRange(im, models.Uint8)
	assert.Equal(t, models.Uint8, out.DType)
	assert.Equal(t, []float64{0, 128, 255}, out.Data)
}
