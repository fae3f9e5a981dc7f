// Package visualization renders images as 16-bit pictures and saves them as
// JPEG files for visual inspection of denoising results.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"imrestore/internal/models"
	"imrestore/pkg/imgconv"
)

// Viewer renders a 2-D image, optionally carrying 3 color channels, or the
// slices of a 3-D grayscale volume.
type Viewer struct {
	// data holds the samples normalized to the float range
	data *models.Image

	// layout says whether the last axis holds color channels
	layout models.Layout
}

// NewViewer creates a viewer for im. Integer images are normalized first.
func NewViewer(im *models.Image, multichannel bool) (*Viewer, error) {
	layout := models.LayoutOf(im, multichannel)
	switch {
	case layout.IsMultichannel() && (layout.SpatialNDim() != 2 || layout.Channels() != 3):
		return nil, fmt.Errorf("color images must be rows x cols x 3, got shape %v", im.Shape)
	case !layout.IsMultichannel() && im.NDim() != 2 && im.NDim() != 3:
		return nil, fmt.Errorf("grayscale images must be 2-D or 3-D, got shape %v", im.Shape)
	}
	return &Viewer{data: imgconv.AsFloat(im), layout: layout}, nil
}

// Slices returns how many pictures the viewer renders: the depth of a
// volume, otherwise 1.
func (v *Viewer) Slices() int {
	if !v.layout.IsMultichannel() && v.data.NDim() == 3 {
		return v.data.Shape[0]
	}
	return 1
}

// ExtractSlice renders picture position. Samples are clamped to [0, 1].
func (v *Viewer) ExtractSlice(position int) (image.Image, error) {
	if position < 0 || position >= v.Slices() {
		return nil, fmt.Errorf("position %d outside [0, %d)", position, v.Slices())
	}

	if v.layout.IsMultichannel() {
		rows, cols := v.data.Shape[0], v.data.Shape[1]
		img := image.NewRGBA64(image.Rect(0, 0, cols, rows))
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				i := (y*cols + x) * 3
				img.SetRGBA64(x, y, color.RGBA64{
					R: to16(v.data.Data[i]),
					G: to16(v.data.Data[i+1]),
					B: to16(v.data.Data[i+2]),
					A: 0xffff,
				})
			}
		}
		return img, nil
	}

	rows, cols := v.data.Shape[v.data.NDim()-2], v.data.Shape[v.data.NDim()-1]
	base := position * rows * cols
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, color.Gray16{Y: to16(v.data.Data[base+y*cols+x])})
		}
	}
	return img, nil
}

func to16(v float64) uint16 {
	return uint16(math.Round(math.Max(0, math.Min(65535, v*65535))))
}

// SaveSlice saves an extracted slice as a JPEG image
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence renders every slice into outputDir as
// <prefix>_NNN.jpg, or <prefix>.jpg for a single picture.
func (v *Viewer) SaveSliceSequence(outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	n := v.Slices()
	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(pos)
		if err != nil {
			return err
		}

		name := prefix + ".jpg"
		if n > 1 {
			name = fmt.Sprintf("%s_%03d.jpg", prefix, pos)
		}
		if err := SaveSlice(img, filepath.Join(outputDir, name)); err != nil {
			return err
		}
	}

	return nil
}
