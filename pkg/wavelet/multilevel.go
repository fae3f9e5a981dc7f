package wavelet

import (
	"fmt"
	"math"

	"imrestore/internal/models"
)

// Coefficients is a multilevel decomposition. Details[0] and Shapes[0]
// belong to the coarsest level.
type Coefficients struct {
	Approx  *models.Image
	Details []Subbands

	// Shapes[i] is the shape of the array that level i was computed from,
	// which is what its synthesis is cropped back to.
	Shapes [][]int

	Wavelet *Wavelet
}

// Levels is the number of decomposition levels held.
func (c *Coefficients) Levels() int { return len(c.Details) }

// MaxLevel is the deepest level at which a signal of length n still has
// coefficients unaffected by boundary extension.
func MaxLevel(n, filterLen int) int {
	if filterLen <= 1 || n < filterLen-1 {
		return 0
	}
	return int(math.Floor(math.Log2(float64(n) / float64(filterLen-1))))
}

// MaxLevelShape is MaxLevel for the shortest axis of shape.
func MaxLevelShape(shape []int, w *Wavelet) int {
	level := -1
	for _, n := range shape {
		if l := MaxLevel(n, w.DecLen()); level < 0 || l < level {
			level = l
		}
	}
	if level < 0 {
		return 0
	}
	return level
}

// ValidateLevel checks a requested level count against shape. A negative
// level is ErrInvalidLevel; one beyond MaxLevelShape is ErrLevelTooDeep,
// which callers may choose to downgrade to a warning since the transform
// itself still works.
func ValidateLevel(shape []int, w *Wavelet, level int) error {
	if level < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if maxLevel := MaxLevelShape(shape, w); level > maxLevel {
		return fmt.Errorf("%w: level %d > %d for shape %v with %s; all coefficients will experience boundary effects",
			ErrLevelTooDeep, level, maxLevel, shape, w.Name)
	}
	return nil
}

// Decompose computes a level-deep multilevel transform of x. Depth beyond
// MaxLevelShape is allowed; only negative levels fail.
func Decompose(x *models.Image, w *Wavelet, level int) (*Coefficients, error) {
	if level < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	c := &Coefficients{
		Details: make([]Subbands, level),
		Shapes:  make([][]int, level),
		Wavelet: w,
	}
	approxKey := ApproxKey(x.NDim())
	cur := x
	for l := level - 1; l >= 0; l-- {
		bands := Dwtn(cur, w)
		c.Shapes[l] = append([]int(nil), cur.Shape...)
		cur = bands[approxKey]
		delete(bands, approxKey)
		c.Details[l] = bands
	}
	if level == 0 {
		cur = cur.Clone()
	}
	c.Approx = cur
	return c, nil
}

// Reconstruct inverts Decompose.
func Reconstruct(c *Coefficients) (*models.Image, error) {
	cur := c.Approx
	approxKey := ApproxKey(cur.NDim())
	for l, details := range c.Details {
		bands := make(Subbands, len(details)+1)
		for key, band := range details {
			bands[key] = band
		}
		bands[approxKey] = cur
		out, err := Idwtn(bands, c.Wavelet)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		cur = out.Crop(c.Shapes[l])
	}
	if len(c.Details) == 0 {
		cur = cur.Clone()
	}
	return cur, nil
}
