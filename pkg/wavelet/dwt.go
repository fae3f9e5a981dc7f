package wavelet

import (
	"fmt"
	"strings"

	"imrestore/internal/models"
)

// symIndex maps k onto [0, n) by half-sample symmetric extension,
// x[-1] = x[0], x[n] = x[n-1], repeated as often as needed.
func symIndex(k, n int) int {
	period := 2 * n
	k %= period
	if k < 0 {
		k += period
	}
	if k >= n {
		k = period - 1 - k
	}
	return k
}

// CoeffLen is the number of coefficients one analysis step produces from a
// signal of length n.
func CoeffLen(n, filterLen int) int {
	return (n + filterLen - 1) / 2
}

// analyze1D runs one analysis step over src, writing approximation and
// detail coefficients into lo and hi, both of length CoeffLen.
func analyze1D(src []float64, w *Wavelet, lo, hi []float64) {
	n := len(src)
	f := w.DecLen()
	for o := range lo {
		i := 2*o + 1
		var a, d float64
		for j := 0; j < f; j++ {
			k := i - j
			if k < 0 || k >= n {
				k = symIndex(k, n)
			}
			x := src[k]
			a += w.DecLo[j] * x
			d += w.DecHi[j] * x
		}
		lo[o] = a
		hi[o] = d
	}
}

// synthesize1D inverts analyze1D. dst must have length 2*len(lo)-F+2.
func synthesize1D(lo, hi []float64, w *Wavelet, dst []float64) {
	f := w.DecLen()
	l := len(lo)
	for n := range dst {
		full := n + f - 2
		kmin := (full - f + 2) / 2
		if kmin < 0 {
			kmin = 0
		}
		kmax := full / 2
		if kmax > l-1 {
			kmax = l - 1
		}
		var sum float64
		for k := kmin; k <= kmax; k++ {
			t := full - 2*k
			if t < 0 || t >= f {
				continue
			}
			sum += lo[k]*w.RecLo[t] + hi[k]*w.RecHi[t]
		}
		dst[n] = sum
	}
}

// Subbands maps keys such as "ad" to coefficient arrays. Letter i of the
// key says whether axis i was low-passed (a) or high-passed (d).
type Subbands map[string]*models.Image

// ApproxKey is the key of the all-lowpass subband for ndim axes.
func ApproxKey(ndim int) string { return strings.Repeat("a", ndim) }

// DetailKey is the key of the all-highpass subband for ndim axes.
func DetailKey(ndim int) string { return strings.Repeat("d", ndim) }

// Dwtn performs one level of the separable transform along every axis of x.
func Dwtn(x *models.Image, w *Wavelet) Subbands {
	bands := Subbands{"": x}
	for axis := 0; axis < x.NDim(); axis++ {
		next := make(Subbands, 2*len(bands))
		for key, band := range bands {
			lo, hi := analyzeAxis(band, axis, w)
			next[key+"a"] = lo
			next[key+"d"] = hi
		}
		bands = next
	}
	return bands
}

func analyzeAxis(x *models.Image, axis int, w *Wavelet) (*models.Image, *models.Image) {
	n := x.Shape[axis]
	shape := append([]int(nil), x.Shape...)
	shape[axis] = CoeffLen(n, w.DecLen())
	lo := models.New(models.Float64, shape...)
	hi := models.New(models.Float64, shape...)

	outStride := models.Strides(shape)[axis]
	inStride := x.Strides()[axis]
	outer := 1
	for _, s := range x.Shape[:axis] {
		outer *= s
	}

	src := make([]float64, n)
	bufLo := make([]float64, shape[axis])
	bufHi := make([]float64, shape[axis])
	for o := 0; o < outer; o++ {
		for i := 0; i < inStride; i++ {
			base := o*n*inStride + i
			for k := range src {
				src[k] = x.Data[base+k*inStride]
			}
			analyze1D(src, w, bufLo, bufHi)
			obase := o*shape[axis]*outStride + i
			for k := range bufLo {
				lo.Data[obase+k*outStride] = bufLo[k]
				hi.Data[obase+k*outStride] = bufHi[k]
			}
		}
	}
	return lo, hi
}

// Idwtn inverts Dwtn. All 2^ndim subbands must be present and share a
// shape. The result may be one sample longer per axis than the array that
// was analysed; callers crop it.
func Idwtn(bands Subbands, w *Wavelet) (*models.Image, error) {
	var ndim int
	for key := range bands {
		ndim = len(key)
		break
	}
	for axis := ndim - 1; axis >= 0; axis-- {
		next := make(Subbands, len(bands)/2)
		for key, lo := range bands {
			if key[axis] != 'a' {
				continue
			}
			prefix := key[:axis]
			suffix := key[axis+1:]
			hi, ok := bands[prefix+"d"+suffix]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrMissingSubband, prefix+"d"+suffix)
			}
			if !lo.SameShape(hi) {
				return nil, fmt.Errorf("%w: subbands %q and %q differ in shape", models.ErrShapeMismatch, key, prefix+"d"+suffix)
			}
			next[prefix+suffix] = synthesizeAxis(lo, hi, axis, w)
		}
		if len(next)*2 != len(bands) {
			return nil, fmt.Errorf("%w: incomplete subband set at axis %d", ErrMissingSubband, axis)
		}
		bands = next
	}
	out, ok := bands[""]
	if !ok {
		return nil, fmt.Errorf("%w: empty subband set", ErrMissingSubband)
	}
	return out, nil
}

func synthesizeAxis(lo, hi *models.Image, axis int, w *Wavelet) *models.Image {
	l := lo.Shape[axis]
	shape := append([]int(nil), lo.Shape...)
	shape[axis] = 2*l - w.DecLen() + 2
	out := models.New(models.Float64, shape...)

	inStride := lo.Strides()[axis]
	outStride := models.Strides(shape)[axis]
	outer := 1
	for _, s := range lo.Shape[:axis] {
		outer *= s
	}

	bufLo := make([]float64, l)
	bufHi := make([]float64, l)
	dst := make([]float64, shape[axis])
	for o := 0; o < outer; o++ {
		for i := 0; i < inStride; i++ {
			base := o*l*inStride + i
			for k := 0; k < l; k++ {
				bufLo[k] = lo.Data[base+k*inStride]
				bufHi[k] = hi.Data[base+k*inStride]
			}
			synthesize1D(bufLo, bufHi, w, dst)
			obase := o*shape[axis]*outStride + i
			for k, v := range dst {
				out.Data[obase+k*outStride] = v
			}
		}
	}
	return out
}
