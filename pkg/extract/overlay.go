package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// previewSpan is the number of background sigmas mapped to full white.
const previewSpan = 50.0

// RenderOverlay draws markers over an asinh-stretched preview of the raw
// frame, resized to targetWidth pixels wide. Markers are coloured from red
// (extended) to green (point-like) by star class.
func RenderOverlay(f *Frame, markers []Marker, bkg, sigma float64, targetWidth int) *image.RGBA {
	if sigma <= 0 {
		sigma = 1
	}
	gray := image.NewGray(f.Bounds())
	norm := math.Asinh(previewSpan / 3)
	for y := 0; y < f.Height; y++ {
		row := f.RawRow(y)
		for x, v := range row {
			s := math.Asinh((float64(v)-bkg)/sigma/3) / norm
			gray.Pix[y*gray.Stride+x] = uint8(255 * math.Max(0, math.Min(1, s)))
		}
	}

	scale := 1.0
	var preview image.Image = gray
	if targetWidth > 0 && targetWidth != f.Width {
		scale = float64(targetWidth) / float64(f.Width)
		preview = imaging.Resize(gray, targetWidth, 0, imaging.Lanczos)
	}
	img := image.NewRGBA(preview.Bounds())
	draw.Draw(img, img.Bounds(), preview, preview.Bounds().Min, draw.Src)

	face := basicfont.Face7x13
	for _, m := range markers {
		c := classColor(m.StarClass)
		drawEllipse(img, m.X*scale, m.Y*scale, m.A*scale, m.B*scale, m.Theta, c)
		cx := int(math.Round((m.X + m.A + 2) * scale))
		cy := int(math.Round(m.Y * scale))
		drawText(img, face, strconv.Itoa(m.ID), cx, cy, c)
	}
	return img
}

// classColor blends red through yellow to green as p goes from 0 to 1.
func classColor(p float64) color.RGBA {
	p = math.Max(0, math.Min(1, p))
	r, g, b := colorful.Hsv(120*p, 0.85, 1).RGB255()
	return color.RGBA{r, g, b, 255}
}

// RenderFieldOverlay paints the 3x3 FWHM map of field at 800 pixels wide.
func RenderFieldOverlay(field *FieldAnalysis, width, height int) (*image.RGBA, error) {
	if field == nil {
		return nil, fmt.Errorf("no field analysis data")
	}

	const targetWidth = 800
	scale := float64(targetWidth) / float64(width)
	imgW := targetWidth
	imgH := max(int(float64(height)*scale), 100)

	summaryH := 60
	totalH := imgH + summaryH
	img := image.NewRGBA(image.Rect(0, 0, imgW, totalH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	xLo := int(float64(imgW) * fieldEdgeFraction)
	xHi := int(float64(imgW) * (1.0 - fieldEdgeFraction))
	yLo := int(float64(imgH) * fieldEdgeFraction)
	yHi := int(float64(imgH) * (1.0 - fieldEdgeFraction))
	xBounds := [3][2]int{{0, xLo}, {xLo, xHi}, {xHi, imgW}}
	yBounds := [3][2]int{{0, yLo}, {yLo, yHi}, {yHi, imgH}}

	centerFWHM := field.Zones[ZoneCenter].MedianFWHM
	if centerFWHM <= 0 {
		centerFWHM = 1
	}

	face := basicfont.Face7x13
	white := color.RGBA{255, 255, 255, 255}
	for i, pos := range ZoneOrder {
		row, col := i/3, i%3
		zone := field.Zones[pos]
		x0, x1 := xBounds[col][0], xBounds[col][1]
		y0, y1 := yBounds[row][0], yBounds[row][1]
		draw.Draw(img, image.Rect(x0, y0, x1, y1), image.NewUniform(fwhmColor(zone.MedianFWHM, centerFWHM)), image.Point{}, draw.Src)

		cx, cy := (x0+x1)/2, (y0+y1)/2
		if zone.MedianFWHM > 0 {
			radius := min(max(int(zone.MedianFWHM*scale*3), 3), (x1-x0)/3)
			drawCircle(img, cx, cy, radius, color.RGBA{255, 255, 255, 200})
		}
		drawCenteredText(img, face, zone.Label, cx, cy-14, white)
		drawCenteredText(img, face, fmt.Sprintf("FWHM: %.2f", zone.MedianFWHM), cx, cy+2, white)
		drawCenteredText(img, face, fmt.Sprintf("n=%d", zone.StarCount), cx, cy+16, white)
	}

	gridColor := color.RGBA{255, 255, 255, 180}
	for x := 0; x < imgW; x++ {
		img.Set(x, yLo, gridColor)
		img.Set(x, yHi, gridColor)
	}
	for y := 0; y < imgH; y++ {
		img.Set(xLo, y, gridColor)
		img.Set(xHi, y, gridColor)
	}

	if field.WorstCorner != "" && field.BestCorner != "" {
		bestX, bestY := cornerCenter(field.BestCorner, xBounds, yBounds)
		worstX, worstY := cornerCenter(field.WorstCorner, xBounds, yBounds)
		arrowColor := color.RGBA{255, 80, 80, 255}
		drawLine(img, bestX, bestY, worstX, worstY, arrowColor)
		drawArrowHead(img, bestX, bestY, worstX, worstY, arrowColor)
	}

	summaryColor := color.RGBA{220, 220, 220, 255}
	summaryY := imgH + 15
	reliable := ""
	if !field.Reliable {
		reliable = "  [LOW STAR COUNT - UNRELIABLE]"
	}
	drawText(img, face, fmt.Sprintf("Tilt: %.1f%%  (worst: %s, best: %s)", field.TiltPct, field.WorstCorner, field.BestCorner), 10, summaryY, summaryColor)
	drawText(img, face, fmt.Sprintf("Off-axis: %.1f%%", field.OffAxisPct)+reliable, 10, summaryY+18, summaryColor)
	return img, nil
}

// fwhmColor grades a zone from green (as sharp as the center) to red (30%
// or more softer).
func fwhmColor(zoneFWHM, centerFWHM float64) color.RGBA {
	if zoneFWHM <= 0 || centerFWHM <= 0 {
		return color.RGBA{40, 40, 40, 255}
	}
	t := math.Max(0, math.Min(1, (zoneFWHM/centerFWHM-1)/0.3))
	good := colorful.Color{R: 0.12, G: 0.4, B: 0.08}
	poor := colorful.Color{R: 0.9, G: 0.1, B: 0.05}
	r, g, b := good.BlendLab(poor, t).Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

// EncodeImage writes img as "jpeg", "png" or "webp".
func EncodeImage(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "png":
		return png.Encode(w, img)
	case "webp":
		return nativewebp.Encode(w, img, nil)
	}
	return fmt.Errorf("unsupported image format %q", format)
}

// EncodeImageBytes returns img encoded as format.
func EncodeImageBytes(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveImage writes img to path in the format named by its extension.
func SaveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	if err := EncodeImage(f, img, strings.TrimPrefix(filepath.Ext(path), ".")); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cornerCenter(label string, xBounds [3][2]int, yBounds [3][2]int) (int, int) {
	var col, row int
	switch label {
	case "TL":
		col, row = 0, 0
	case "TR":
		col, row = 2, 0
	case "BL":
		col, row = 0, 2
	case "BR":
		col, row = 2, 2
	default:
		return 0, 0
	}
	return (xBounds[col][0] + xBounds[col][1]) / 2, (yBounds[row][0] + yBounds[row][1]) / 2
}

func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	advance := font.MeasureString(face, s)
	drawText(img, face, s, cx-advance.Round()/2, cy, c)
}

// drawEllipse outlines the ellipse with semi-axes a, b rotated by theta
// radians around (cx, cy).
func drawEllipse(img *image.RGBA, cx, cy, a, b, theta float64, c color.RGBA) {
	n := max(16, int(2*math.Pi*a))
	st, ct := math.Sincos(theta)
	px, py := 0, 0
	for i := 0; i <= n; i++ {
		sp, cp := math.Sincos(2 * math.Pi * float64(i) / float64(n))
		ex, ey := a*cp, b*sp
		x := int(math.Round(cx + ex*ct - ey*st))
		y := int(math.Round(cy + ex*st + ey*ct))
		if i > 0 {
			drawLine(img, px, py, x, y, c)
		}
		px, py = x, y
	}
}

// drawCircle draws a circle outline using the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x, y, err := radius, 0, 0
	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawLine draws a 1px line between two points using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawArrowHead(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	length := math.Hypot(dx, dy)
	if length < 1 {
		return
	}
	dx /= length
	dy /= length

	const sz = 15.0
	px := float64(x1) - dx*sz
	py := float64(y1) - dy*sz
	drawLine(img, x1, y1, int(px+dy*sz*0.4), int(py-dx*sz*0.4), c)
	drawLine(img, x1, y1, int(px-dy*sz*0.4), int(py+dx*sz*0.4), c)
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
