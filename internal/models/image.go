package models

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned when array shapes or lengths disagree.
var ErrShapeMismatch = errors.New("models: shape mismatch")

// DType identifies the numeric type an Image's samples stand for. Samples
// are always held as float64; the DType records the range and precision
// they came from.
type DType int

const (
	Float64 DType = iota
	Float32
	Float16
	Uint8
	Uint16
	Uint32
	Int8
	Int16
	Int32
)

var dtypeNames = map[DType]string{
	Float64: "float64",
	Float32: "float32",
	Float16: "float16",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DType(%d)", int(d))
}

// IsFloat reports whether d is a floating-point type.
func (d DType) IsFloat() bool {
	return d == Float64 || d == Float32 || d == Float16
}

// IsSigned reports whether d is a signed integer type.
func (d DType) IsSigned() bool {
	return d == Int8 || d == Int16 || d == Int32
}

// Limits returns the representable range of an integer dtype. Float types
// report the nominal image range [-1, 1].
func (d DType) Limits() (low, high float64) {
	switch d {
	case Uint8:
		return 0, 255
	case Uint16:
		return 0, 65535
	case Uint32:
		return 0, 4294967295
	case Int8:
		return -128, 127
	case Int16:
		return -32768, 32767
	case Int32:
		return -2147483648, 2147483647
	}
	return -1, 1
}

// Image is an N-dimensional array stored in row-major order. When an image
// carries channels they live on the last axis.
type Image struct {
	// Data holds the samples in row-major order
	Data []float64

	// Shape is the extent along each axis
	Shape []int

	// DType is the numeric type the samples represent
	DType DType
}

// New allocates a zero-filled image.
func New(dtype DType, shape ...int) *Image {
	return &Image{
		Data:  make([]float64, shapeSize(shape)),
		Shape: append([]int(nil), shape...),
		DType: dtype,
	}
}

// FromData wraps data in an image without copying it.
func FromData(data []float64, dtype DType, shape ...int) (*Image, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: image needs at least one axis", ErrShapeMismatch)
	}
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("%w: non-positive extent in %v", ErrShapeMismatch, shape)
		}
	}
	if n := shapeSize(shape); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v holds %d samples, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Image{Data: data, Shape: append([]int(nil), shape...), DType: dtype}, nil
}

func shapeSize(shape []int) int {
	return lo.Reduce(shape, func(agg, s, _ int) int { return agg * s }, 1)
}

// Size returns the number of samples.
func (im *Image) Size() int { return len(im.Data) }

// NDim returns the number of axes.
func (im *Image) NDim() int { return len(im.Shape) }

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	return &Image{
		Data:  append([]float64(nil), im.Data...),
		Shape: append([]int(nil), im.Shape...),
		DType: im.DType,
	}
}

// SameShape reports whether both images have identical shapes.
func (im *Image) SameShape(other *Image) bool {
	if len(im.Shape) != len(other.Shape) {
		return false
	}
	for i := range im.Shape {
		if im.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Strides returns the row-major element strides.
func (im *Image) Strides() []int {
	return Strides(im.Shape)
}

// Strides returns the row-major element strides of shape.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Index converts a multi-index into a flat offset.
func (im *Image) Index(idx ...int) int {
	offset := 0
	for i, s := range im.Strides() {
		offset += idx[i] * s
	}
	return offset
}

// At returns the sample at idx.
func (im *Image) At(idx ...int) float64 { return im.Data[im.Index(idx...)] }

// Set stores v at idx.
func (im *Image) Set(v float64, idx ...int) { im.Data[im.Index(idx...)] = v }

// Min returns the smallest sample.
func (im *Image) Min() float64 { return floats.Min(im.Data) }

// Max returns the largest sample.
func (im *Image) Max() float64 { return floats.Max(im.Data) }

// Channel extracts channel c of the last axis as a new image.
func (im *Image) Channel(c int) *Image {
	nc := im.Shape[len(im.Shape)-1]
	out := New(im.DType, im.Shape[:len(im.Shape)-1]...)
	for i := range out.Data {
		out.Data[i] = im.Data[i*nc+c]
	}
	return out
}

// SetChannel overwrites channel c of the last axis with ch.
func (im *Image) SetChannel(c int, ch *Image) error {
	nc := im.Shape[len(im.Shape)-1]
	if ch.Size()*nc != im.Size() {
		return fmt.Errorf("%w: channel of %d samples for image %v", ErrShapeMismatch, ch.Size(), im.Shape)
	}
	for i, v := range ch.Data {
		im.Data[i*nc+c] = v
	}
	return nil
}

// Roll circularly shifts the image by shift[i] along every axis i, the
// sample at index k moving to index k+shift[i].
func (im *Image) Roll(shift []int) *Image {
	out := New(im.DType, im.Shape...)
	strides := im.Strides()
	ndim := im.NDim()
	idx := make([]int, ndim)
	for _, v := range im.Data {
		dst := 0
		for ax := 0; ax < ndim; ax++ {
			n := im.Shape[ax]
			k := ((idx[ax]+shift[ax])%n + n) % n
			dst += k * strides[ax]
		}
		out.Data[dst] = v
		for ax := ndim - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < im.Shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
	return out
}

// Crop keeps the leading shape[i] samples along every axis.
func (im *Image) Crop(shape []int) *Image {
	same := len(shape) == im.NDim()
	for i := 0; same && i < len(shape); i++ {
		same = shape[i] == im.Shape[i]
	}
	if same {
		return im.Clone()
	}
	out := New(im.DType, shape...)
	src := im.Strides()
	idx := make([]int, len(shape))
	for i := range out.Data {
		off := 0
		for ax := range idx {
			off += idx[ax] * src[ax]
		}
		out.Data[i] = im.Data[off]
		for ax := len(shape) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
	return out
}

// ForEachLane calls fn once for every 1-D lane of an array of the given
// shape running along axis. base is the flat offset of the lane's first
// sample and stride the distance between consecutive samples.
func ForEachLane(shape []int, axis int, fn func(base, stride int)) {
	stride := Strides(shape)[axis]
	outer := shapeSize(shape[:axis])
	span := shape[axis] * stride
	for o := 0; o < outer; o++ {
		for i := 0; i < stride; i++ {
			fn(o*span+i, stride)
		}
	}
}
