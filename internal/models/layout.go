package models

import "fmt"

// Layout says how an image's axes are to be interpreted. It is resolved
// once at the entry of an operation and handed to every stage after that,
// so no stage has to guess whether the last axis holds channels.
type Layout struct {
	ndim     int
	channels int
}

// Grayscale is a layout where every axis is spatial.
func Grayscale(ndim int) Layout {
	return Layout{ndim: ndim}
}

// Multichannel is a layout whose last axis holds channels.
func Multichannel(ndim, channels int) Layout {
	return Layout{ndim: ndim, channels: channels}
}

// LayoutOf resolves the layout of im.
func LayoutOf(im *Image, multichannel bool) Layout {
	if multichannel {
		return Multichannel(im.NDim(), im.Shape[im.NDim()-1])
	}
	return Grayscale(im.NDim())
}

// IsMultichannel reports whether the last axis holds channels.
func (l Layout) IsMultichannel() bool { return l.channels > 0 }

// NDim is the total number of axes, channel axis included.
func (l Layout) NDim() int { return l.ndim }

// SpatialNDim is the number of axes that carry spatial structure.
func (l Layout) SpatialNDim() int {
	if l.IsMultichannel() {
		return l.ndim - 1
	}
	return l.ndim
}

// Channels returns the channel count, 1 for grayscale layouts.
func (l Layout) Channels() int {
	if l.IsMultichannel() {
		return l.channels
	}
	return 1
}

// SpatialShape drops the channel axis from shape when there is one.
func (l Layout) SpatialShape(shape []int) []int {
	return append([]int(nil), shape[:l.SpatialNDim()]...)
}

func (l Layout) String() string {
	if l.IsMultichannel() {
		return fmt.Sprintf("Multichannel(%d, %d)", l.ndim, l.channels)
	}
	return fmt.Sprintf("Grayscale(%d)", l.ndim)
}
