//go:build purego || js

package main

import (
	"fmt"

	"github.com/disintegration/imaging"
	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/tiff"

	"starextract/pkg/imageops"
)

// loadNonFitsImage decodes any registered format to 16-bit luminance.
func loadNonFitsImage(path string) (imageops.Mat, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return imageops.Mat{}, fmt.Errorf("decoding image: %w", err)
	}
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	pixels := make([]float32, w*h)
	for i := range pixels {
		pixels[i] = float32(gray.Pix[4*i]) * 257
	}
	return imageops.FromFloat32(pixels, w, h)
}
