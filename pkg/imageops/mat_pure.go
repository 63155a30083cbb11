//go:build purego || js

package imageops

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"slices"
)

// Backend names the Mat implementation compiled in.
const Backend = "purego"

// Mat is a dense row-major float32 matrix.
type Mat struct {
	data       []float32
	rows, cols int
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]float32, rows*cols), rows: rows, cols: cols}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return len(m.data) == 0 }

func (m Mat) Clone() Mat {
	return Mat{data: slices.Clone(m.data), rows: m.rows, cols: m.cols}
}

func (m *Mat) Close() { *m = Mat{} }

// DataFloat32 returns the pixel buffer. Writes go to the Mat.
func (m Mat) DataFloat32() []float32 { return m.data }

func CopyMatTo(src Mat, dst *Mat) {
	dst.ensure(src.rows, src.cols)
	copy(dst.data, src.data)
}

func (m *Mat) ensure(rows, cols int) {
	if m.rows != rows || m.cols != cols || m.data == nil {
		*m = NewMatWithSize(rows, cols)
	}
}

// reflect101 mirrors idx into [0, size) without repeating the edge sample.
func reflect101(idx, size int) int {
	if size == 1 {
		return 0
	}
	for idx < 0 || idx >= size {
		if idx < 0 {
			idx = -idx
		}
		if idx >= size {
			idx = 2*size - 2 - idx
		}
	}
	return idx
}

func sepFilter2DReflect(src Mat, dst *Mat, kernelX, kernelY Mat) {
	rows, cols := src.rows, src.cols
	kx, ky := kernelX.data, kernelY.data
	hx, hy := len(kx)/2, len(ky)/2

	tmp := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		in := src.data[r*cols : (r+1)*cols]
		out := tmp[r*cols : (r+1)*cols]
		for c := range out {
			var sum float32
			if c >= hx && c+hx < cols {
				for k, w := range kx {
					sum += in[c+k-hx] * w
				}
			} else {
				for k, w := range kx {
					sum += in[reflect101(c+k-hx, cols)] * w
				}
			}
			out[c] = sum
		}
	}

	dst.ensure(rows, cols)
	offs := make([]int, len(ky))
	for r := 0; r < rows; r++ {
		for k := range ky {
			offs[k] = reflect101(r+k-hy, rows) * cols
		}
		out := dst.data[r*cols : (r+1)*cols]
		for c := range out {
			var sum float32
			for k, w := range ky {
				sum += tmp[offs[k]+c] * w
			}
			out[c] = sum
		}
	}
}

func gaussianKernel1D(size int, sigma float64) Mat {
	m := NewMatWithSize(size, 1)
	half := size / 2
	sum := 0.0
	vals := make([]float64, size)
	for i := range vals {
		x := float64(i - half)
		vals[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += vals[i]
	}
	for i, v := range vals {
		m.data[i] = float32(v / sum)
	}
	return m
}

// medianBlur replicates edge pixels outside the frame.
func medianBlur(src Mat, dst *Mat, ksize int) {
	rows, cols := src.rows, src.cols
	half := ksize / 2
	out := make([]float32, rows*cols)
	window := make([]float32, 0, ksize*ksize)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			window = window[:0]
			for dr := -half; dr <= half; dr++ {
				rr := min(max(r+dr, 0), rows-1)
				for dc := -half; dc <= half; dc++ {
					cc := min(max(c+dc, 0), cols-1)
					window = append(window, src.data[rr*cols+cc])
				}
			}
			out[r*cols+c] = selectMedian(window)
		}
	}
	dst.ensure(rows, cols)
	copy(dst.data, out)
}

// selectMedian partially orders v in place and returns its middle element.
func selectMedian(v []float32) float32 {
	k := len(v) / 2
	lo, hi := 0, len(v)-1
	for lo < hi {
		pivot := v[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for v[i] < pivot {
				i++
			}
			for v[j] > pivot {
				j--
			}
			if i <= j {
				v[i], v[j] = v[j], v[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return v[k]
		}
	}
	return v[k]
}

func absDiff(a, b Mat, dst *Mat) {
	dst.ensure(a.rows, a.cols)
	for i := range a.data {
		d := a.data[i] - b.data[i]
		if d < 0 {
			d = -d
		}
		dst.data[i] = d
	}
}

func thresholdBinary(src Mat, dst *Mat, thresh, maxval float32) {
	dst.ensure(src.rows, src.cols)
	for i, v := range src.data {
		if v > thresh {
			dst.data[i] = maxval
		} else {
			dst.data[i] = 0
		}
	}
}

func countNonZero(src Mat) int {
	n := 0
	for _, v := range src.data {
		if v != 0 {
			n++
		}
	}
	return n
}

func copyToWithMask(src Mat, dst *Mat, mask Mat) {
	for i, w := range mask.data {
		if w != 0 {
			dst.data[i] = src.data[i]
		}
	}
}

// writeMat saves m scaled to 16 bits as PNG, whatever the extension of path.
func writeMat(path string, m Mat, scale float64) error {
	img := image.NewGray16(image.Rect(0, 0, m.cols, m.rows))
	for i, v := range m.data {
		s := math.Max(0, math.Min(65535, float64(v)*scale))
		img.Pix[2*i] = uint8(uint16(s) >> 8)
		img.Pix[2*i+1] = uint8(uint16(s))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
