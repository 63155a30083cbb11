/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package imageops

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrepareParams controls frame preparation.
type PrepareParams struct {
	HotpixelFiltering bool
	// Pixels differing from their 3x3 median by more than this many ADU are
	// replaced by the median. Zero replaces every pixel by its median.
	HotpixelThreshold float64
	// Odd Gaussian kernel size for the detection copy; 0 disables smoothing.
	FilterSize int
	// Directory receiving intermediate images. Ignored unless it exists.
	SaveIntermediateFilesPath string
	// Scale applied to values when saving intermediate images.
	SaveScale float64
}

// NewPrepareParams creates PrepareParams with default values.
func NewPrepareParams() PrepareParams {
	return PrepareParams{
		HotpixelFiltering: true,
		HotpixelThreshold: 500,
		FilterSize:        5,
		SaveScale:         1,
	}
}

// Prepared holds the raw and convolved planes handed to the extractor.
type Prepared struct {
	Width, Height int
	Raw, Conv     []float32
	HotpixelCount int64
}

// Prepare filters hot pixels in src and derives the convolved detection
// plane. src is not modified.
func Prepare(src Mat, p PrepareParams) (*Prepared, error) {
	if src.Empty() {
		return nil, fmt.Errorf("empty source image")
	}
	if p.FilterSize != 0 && !ValidKernelSize(p.FilterSize) {
		return nil, fmt.Errorf("filter size must be 0 or an odd number >= 3, got %d", p.FilterSize)
	}

	img := src.Clone()
	defer img.Close()

	res := &Prepared{Width: img.Cols(), Height: img.Rows()}
	if p.HotpixelFiltering {
		res.HotpixelCount = filterHotpixels(&img, p.HotpixelThreshold)
	}
	maybeSaveImage(img, p, "01-raw.png")
	res.Raw = ToFloat32(img)

	if p.FilterSize == 0 {
		res.Conv = res.Raw
		return res, nil
	}
	conv := NewMat()
	defer conv.Close()
	if err := ConvolveGaussian(&img, &conv, p.FilterSize); err != nil {
		return nil, err
	}
	maybeSaveImage(conv, p, "02-convolved.png")
	res.Conv = ToFloat32(conv)
	return res, nil
}

func filterHotpixels(m *Mat, threshold float64) int64 {
	blurred := NewMat()
	defer blurred.Close()
	if threshold <= 0 {
		medianBlur(*m, m, 3)
		return 0
	}
	diff := NewMat()
	defer diff.Close()
	mask := NewMat()
	defer mask.Close()

	medianBlur(*m, &blurred, 3)
	absDiff(*m, blurred, &diff)
	thresholdBinary(diff, &mask, float32(threshold), 1.0)
	n := int64(countNonZero(mask))
	copyToWithMask(blurred, m, mask)
	return n
}

func maybeSaveImage(img Mat, p PrepareParams, filename string) {
	if p.SaveIntermediateFilesPath == "" {
		return
	}
	if _, err := os.Stat(p.SaveIntermediateFilesPath); os.IsNotExist(err) {
		return
	}
	scale := p.SaveScale
	if scale <= 0 {
		scale = 1
	}
	// Debug output only; a failed write does not affect the result.
	_ = writeMat(filepath.Join(p.SaveIntermediateFilesPath, filename), img, scale)
}
