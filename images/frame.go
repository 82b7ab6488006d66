package images

import (
	"image"
	"time"
)

// Frame is a single captured video frame: the color buffer and its grayscale
// derivative, both with the same dimensions.
type Frame struct {
	ID        uint64
	Color     *image.RGBA
	Gray      *image.Gray
	Timestamp time.Time
}

// NewFrame builds a frame from any decoded image.
//
// Arguments:
//   - id: Sequence number assigned by the capture source.
//   - img: The captured image.
//
// Returns:
//   - *Frame: The frame with its grayscale buffer derived from img.
func NewFrame(id uint64, img image.Image) *Frame {
	color := ToRGBA(img)
	return &Frame{
		ID:        id,
		Color:     color,
		Gray:      Grayscale(color),
		Timestamp: time.Now(),
	}
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point {
	return f.Color.Rect.Size()
}

// WithColor returns a shallow copy of the frame using a different color buffer.
func (f *Frame) WithColor(color *image.RGBA) *Frame {
	out := *f
	out.Color = color
	return &out
}
