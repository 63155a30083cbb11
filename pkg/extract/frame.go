package extract

import (
	"fmt"
	"image"
)

// Frame is a calibrated image and its matched convolved copy, both stored
// row-major as float32.
type Frame struct {
	Width, Height int
	Raw           []float32
	Conv          []float32
}

// NewFrame wraps raw and conv. A nil conv means detection runs on the raw
// values.
func NewFrame(width, height int, raw, conv []float32) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(raw) != width*height {
		return nil, fmt.Errorf("raw buffer has %d values, expected %d", len(raw), width*height)
	}
	if conv == nil {
		conv = raw
	}
	if len(conv) != len(raw) {
		return nil, fmt.Errorf("convolved buffer has %d values, expected %d", len(conv), len(raw))
	}
	return &Frame{Width: width, Height: height, Raw: raw, Conv: conv}, nil
}

func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

func (f *Frame) RawRow(y int) []float32 { return f.Raw[y*f.Width : (y+1)*f.Width] }

func (f *Frame) ConvRow(y int) []float32 { return f.Conv[y*f.Width : (y+1)*f.Width] }

func (f *Frame) at(x, y int) float32 { return f.Raw[y*f.Width+x] }

func (f *Frame) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}
