//go:build !purego && !js

package imageops

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Backend names the Mat implementation compiled in.
const Backend = "opencv"

// Mat wraps a single-channel CV_32F gocv.Mat.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat { return Mat{m: gocv.NewMat()} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)}
}

func (mat Mat) Rows() int   { return mat.m.Rows() }
func (mat Mat) Cols() int   { return mat.m.Cols() }
func (mat Mat) Empty() bool { return mat.m.Empty() }
func (mat Mat) Clone() Mat  { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()     { mat.m.Close() }

// DataFloat32 returns the pixel buffer. Writes go to the Mat.
func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// FromGocv converts any single-channel gocv.Mat to a CV_32F Mat. The source
// is left untouched.
func FromGocv(src gocv.Mat) (Mat, error) {
	if src.Empty() {
		return Mat{}, fmt.Errorf("empty image")
	}
	gray := src
	if src.Channels() > 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	dst := gocv.NewMat()
	gray.ConvertTo(&dst, gocv.MatTypeCV32F)
	return Mat{m: dst}, nil
}

func CopyMatTo(src Mat, dst *Mat) {
	src.m.CopyTo(&dst.m)
}

func sepFilter2DReflect(src Mat, dst *Mat, kernelX, kernelY Mat) {
	gocv.SepFilter2D(src.m, &dst.m, gocv.MatTypeCV32F, kernelX.m, kernelY.m, image.Pt(-1, -1), 0, gocv.BorderReflect)
}

func gaussianKernel1D(size int, sigma float64) Mat {
	return Mat{m: gocv.GetGaussianKernel(size, sigma)}
}

func medianBlur(src Mat, dst *Mat, ksize int) {
	gocv.MedianBlur(src.m, &dst.m, ksize)
}

func absDiff(a, b Mat, dst *Mat) {
	gocv.AbsDiff(a.m, b.m, &dst.m)
}

func thresholdBinary(src Mat, dst *Mat, thresh, maxval float32) {
	gocv.Threshold(src.m, &dst.m, thresh, maxval, gocv.ThresholdBinary)
}

func countNonZero(src Mat) int {
	return gocv.CountNonZero(src.m)
}

func copyToWithMask(src Mat, dst *Mat, mask Mat) {
	mask8 := gocv.NewMat()
	defer mask8.Close()
	mask.m.ConvertTo(&mask8, gocv.MatTypeCV8U)
	src.m.CopyToWithMask(&dst.m, mask8)
}

// writeMat saves m scaled to 16 bits. OpenCV picks the codec from path.
func writeMat(path string, m Mat, scale float64) error {
	out := gocv.NewMat()
	defer out.Close()
	m.m.ConvertToWithParams(&out, gocv.MatTypeCV16U, float32(scale), 0)
	if !gocv.IMWrite(path, out) {
		return fmt.Errorf("writing %s failed", path)
	}
	return nil
}
