//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	"starextract/pkg/imageops"
)

func loadNonFitsImage(path string) (imageops.Mat, error) {
	src := gocv.IMRead(path, gocv.IMReadAnyDepth|gocv.IMReadGrayScale)
	if src.Empty() {
		return imageops.Mat{}, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()
	return imageops.FromGocv(src)
}
