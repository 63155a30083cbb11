package extract

import "math"

// preanalyse fills the bounding box, flux, peak and shape of o from its
// chain, weighting by value above bkg.
func (e *Engine) preanalyse(pixels []Pixel, o *Object, bkg float64) {
	o.XMin, o.YMin = math.MaxInt, math.MaxInt
	o.XMax, o.YMax = math.MinInt, math.MinInt
	o.Peak, o.CPeak = math.Inf(-1), math.Inf(-1)
	o.Flux, o.CFlux = 0, 0
	o.Flags &^= FlagSaturated | FlagTruncated

	for p := o.First; p != NoPixel; p = pixels[p].Next {
		px := &pixels[p]
		o.XMin = min(o.XMin, px.X)
		o.XMax = max(o.XMax, px.X)
		o.YMin = min(o.YMin, px.Y)
		o.YMax = max(o.YMax, px.Y)
	}

	// Moments are accumulated relative to the box corner to keep the sums small.
	var sum, xs, ys, x2s, y2s, xys float64
	n := 0
	for p := o.First; p != NoPixel; p = pixels[p].Next {
		px := &pixels[p]
		v := float64(px.Value) - bkg
		cv := float64(px.CValue) - bkg
		o.Flux += v
		o.CFlux += cv
		if v > o.Peak {
			o.Peak = v
		}
		if cv > o.CPeak {
			o.CPeak = cv
			o.PeakX, o.PeakY = px.X, px.Y
		}
		if e.Params.SatLevel > 0 && float64(px.Value) >= e.Params.SatLevel {
			o.Flags |= FlagSaturated
		}
		dx, dy := float64(px.X-o.XMin), float64(px.Y-o.YMin)
		if v > 0 {
			sum += v
			xs += v * dx
			ys += v * dy
			x2s += v * dx * dx
			y2s += v * dy * dy
			xys += v * dx * dy
		}
		n++
	}
	if sum <= 0 {
		// Nothing above the background: fall back to geometric moments.
		sum, xs, ys, x2s, y2s, xys = 0, 0, 0, 0, 0, 0
		for p := o.First; p != NoPixel; p = pixels[p].Next {
			dx, dy := float64(pixels[p].X-o.XMin), float64(pixels[p].Y-o.YMin)
			sum++
			xs += dx
			ys += dy
			x2s += dx * dx
			y2s += dy * dy
			xys += dx * dy
		}
	}
	if n == 0 {
		return
	}

	mx, my := xs/sum, ys/sum
	o.MX, o.MY = mx+float64(o.XMin), my+float64(o.YMin)
	o.M2X = x2s/sum - mx*mx
	o.M2Y = y2s/sum - my*my
	o.MXY = xys/sum - mx*my
	o.setShape()

	f := e.Frame
	if o.XMin == 0 || o.YMin == 0 || o.XMax == f.Width-1 || o.YMax == f.Height-1 {
		o.Flags |= FlagTruncated
	}
}

// setShape derives the ellipse and its quadratic form from the second
// moments, widening single-pixel-thin distributions first.
func (o *Object) setShape() {
	a, b, theta, cxx, cyy, cxy, x2, y2 := ellipse(o.M2X, o.M2Y, o.MXY)
	o.M2X, o.M2Y = x2, y2
	o.A, o.B, o.Theta = a, b, theta
	o.CXX, o.CYY, o.CXY = cxx, cyy, cxy
}

func ellipse(x2, y2, xy float64) (a, b, theta, cxx, cyy, cxy, nx2, ny2 float64) {
	det := x2*y2 - xy*xy
	if det < 0.00694 {
		x2 += 1.0 / 12
		y2 += 1.0 / 12
		det = x2*y2 - xy*xy
	}
	a, b, theta = axes(x2, y2, xy)
	cxx = y2 / det
	cyy = x2 / det
	cxy = -2 * xy / det
	return a, b, theta, cxx, cyy, cxy, x2, y2
}

// axes returns the semi-axes and position angle, in radians, of the ellipse
// with second moments x2, y2 and xy.
func axes(x2, y2, xy float64) (a, b, theta float64) {
	d := x2 - y2
	if d != 0 {
		theta = math.Atan2(2*xy, d) / 2
	} else {
		theta = math.Pi / 4
	}
	t := math.Sqrt(0.25*d*d + xy*xy)
	mean := 0.5 * (x2 + y2)
	return math.Sqrt(mean + t), math.Sqrt(math.Max(mean-t, 0)), theta
}
