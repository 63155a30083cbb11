/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

// Package imageops prepares frames for extraction on top of a Mat with an
// OpenCV backend and a pure Go fallback (build tags purego or js).
package imageops

import "fmt"

// FromFloat32 copies row-major pixels into a new Mat.
func FromFloat32(pixels []float32, width, height int) (Mat, error) {
	if width <= 0 || height <= 0 || len(pixels) != width*height {
		return Mat{}, fmt.Errorf("%d pixels do not fill %dx%d", len(pixels), width, height)
	}
	m := NewMatWithSize(height, width)
	copy(m.DataFloat32(), pixels)
	return m, nil
}

// ToFloat32 copies the pixels of m into a new row-major slice.
func ToFloat32(m Mat) []float32 {
	n := m.Rows() * m.Cols()
	out := make([]float32, n)
	copy(out, m.DataFloat32()[:n])
	return out
}

// ValidKernelSize reports whether size can be used by ConvolveGaussian.
func ValidKernelSize(size int) bool {
	return size >= 3 && size%2 == 1
}

// ConvolveGaussian applies a separated Gaussian convolution of odd size
// kernelSize with reflected borders.
func ConvolveGaussian(src, dst *Mat, kernelSize int) error {
	if !ValidKernelSize(kernelSize) {
		return fmt.Errorf("kernel size must be an odd number >= 3, got %d", kernelSize)
	}
	sigma := 0.159758 * float64(kernelSize)
	kernel := gaussianKernel1D(kernelSize, sigma)
	defer kernel.Close()
	sepFilter2DReflect(*src, dst, kernel, kernel)
	return nil
}
