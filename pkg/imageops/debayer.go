package imageops

// DebayerRGGB interpolates a raw RGGB mosaic bilinearly and returns the
// luminance (R + G + B) / 3 of every pixel, in the input's units.
//
// RGGB layout (row-major, 0-indexed):
//
//	(even row, even col) = R
//	(even row, odd  col) = G  (Gr)
//	(odd  row, even col) = G  (Gb)
//	(odd  row, odd  col) = B
//
// Edge pixels use replicated neighbours.
func DebayerRGGB(data []float32, width, height int) []float32 {
	out := make([]float32, width*height)
	px := func(x, y int) float64 {
		x = min(max(x, 0), width-1)
		y = min(max(y, 0), height-1)
		return float64(data[y*width+x])
	}
	cross := func(x, y int) float64 {
		return (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
	}
	diag := func(x, y int) float64 {
		return (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
	}
	horiz := func(x, y int) float64 { return (px(x-1, y) + px(x+1, y)) / 2 }
	vert := func(x, y int) float64 { return (px(x, y-1) + px(x, y+1)) / 2 }

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b float64
			switch {
			case y%2 == 0 && x%2 == 0:
				r, g, b = px(x, y), cross(x, y), diag(x, y)
			case y%2 == 0:
				r, g, b = horiz(x, y), px(x, y), vert(x, y)
			case x%2 == 0:
				r, g, b = vert(x, y), px(x, y), horiz(x, y)
			default:
				r, g, b = diag(x, y), cross(x, y), px(x, y)
			}
			out[y*width+x] = float32((r + g + b) / 3)
		}
	}
	return out
}

// DebayerToMat debayers an RGGB mosaic into a luminance Mat.
func DebayerToMat(pixels []float32, width, height int) (Mat, error) {
	return FromFloat32(DebayerRGGB(pixels, width, height), width, height)
}
