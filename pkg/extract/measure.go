package extract

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// kronRadiusLimit is the elliptical radius, in units of the isophotal
// ellipse, over which the Kron first moment is taken.
const kronRadiusLimit = 6.0

// Measure computes the photometry, shape and world position of object idx.
// groupFlux is the total flux of the group the object was deblended from.
func (e *Engine) Measure(list *ObjectList, idx int, groupFlux float64) {
	p := e.Params
	o := &list.Objects[idx]

	o.Bkg, o.BkgSigma = e.Background, e.Sigma
	if p.LocalBackground {
		if st, ok := e.localBackground(o); ok {
			o.Bkg, o.BkgSigma = st.Mean, st.StdDev
		}
	}
	e.preanalyse(list.Pixels, o, o.Bkg)

	e.isophotes(list.Pixels, o)
	if p.ComputeFWHM {
		o.FWHM = e.fwhm(list.Pixels, o)
	}
	e.aperturePhotometry(o)
	e.autoPhotometry(o)
	if e.Astrometry != nil {
		e.worldCoordinates(o)
	}
	o.GroupFlux = groupFlux
}

// isoLevels returns the NIso thresholds above the background between the
// detection threshold and the peak.
func (e *Engine) isoLevels(o *Object) [NIso]float64 {
	var lv [NIso]float64
	t, peak := o.Thresh, o.Peak
	for i := range lv {
		switch {
		case t <= 0 || peak <= t:
			lv[i] = t
		case e.Params.Detector == DetectorPhotographic:
			lv[i] = t + (peak-t)*float64(i)/NIso
		default:
			lv[i] = t * math.Pow(peak/t, float64(i)/NIso)
		}
	}
	return lv
}

func (e *Engine) isophotes(pixels []Pixel, o *Object) {
	p := e.Params
	levels := e.isoLevels(o)
	o.Iso = [NIso]int{}
	o.Iso[0] = o.NPix
	for q := o.First; q != NoPixel; q = pixels[q].Next {
		v := float64(pixels[q].Value) - o.Bkg
		for i := 1; i < NIso; i++ {
			if v > levels[i] {
				o.Iso[i]++
			}
		}
	}

	o.FluxIso = o.Flux
	o.FluxVar = float64(o.NPix) * o.BkgSigma * o.BkgSigma
	if p.Gain > 0 && o.Flux > 0 {
		o.FluxVar += o.Flux / p.Gain
	}
	if o.Flux <= 0 {
		o.Flags |= FlagIsophotal
	}
	o.MagIso, o.MagIsoErr = e.magnitude(o.FluxIso, o.FluxVar)

	// Correct for the wings lost below the isophote, assuming a Gaussian profile.
	o.FluxIsoCor = o.FluxIso
	if o.Flux > 0 {
		ati := float64(o.NPix) * o.Thresh / o.Flux
		ati = math.Max(0, math.Min(1, ati))
		o.FluxIsoCor = o.Flux / (1 - 0.196099*ati - 0.751208*ati*ati)
	}
	o.MagIsoCor, _ = e.magnitude(o.FluxIsoCor, o.FluxVar)
	o.MagIsoCorErr = o.MagIsoErr
}

// magnitude returns the magnitude of flux and its error, or 99 for both when
// flux is not positive.
func (e *Engine) magnitude(flux, variance float64) (float64, float64) {
	if flux <= 0 {
		return 99, 99
	}
	return e.Params.MagZeroPoint - 2.5*math.Log10(flux), 1.0857 * math.Sqrt(variance) / flux
}

// fwhm fits ln(v) = c0 + c1*r² over the unsaturated pixels brighter than a
// fifth of the peak, weighting each point by its value. It returns 0 when the
// fit is not possible.
func (e *Engine) fwhm(pixels []Pixel, o *Object) float64 {
	p := e.Params
	floor := o.Peak / 5
	var rs, ls, ws []float64
	for q := o.First; q != NoPixel; q = pixels[q].Next {
		px := &pixels[q]
		v := float64(px.Value) - o.Bkg
		if v <= floor || v <= 0 {
			continue
		}
		if p.SatLevel > 0 && float64(px.Value) >= p.SatLevel {
			continue
		}
		dx, dy := float64(px.X)-o.MX, float64(px.Y)-o.MY
		rs = append(rs, dx*dx+dy*dy)
		ls = append(ls, math.Log(v))
		ws = append(ws, math.Sqrt(v))
	}
	n := len(rs)
	if n < 3 {
		return 0
	}

	A := mat.NewDense(n, 2, nil)
	B := mat.NewVecDense(n, nil)
	for i := range rs {
		A.Set(i, 0, ws[i])
		A.Set(i, 1, ws[i]*rs[i])
		B.SetVec(i, ws[i]*ls[i])
	}
	var qr mat.QR
	qr.Factorize(A)
	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, B); err != nil {
		return 0
	}
	slope := c.AtVec(1)
	if slope >= 0 || math.IsNaN(slope) {
		return 0
	}
	f := 2.3548 * math.Sqrt(-1/(2*slope))
	return f - 1/(4*f)
}

// aperturePhotometry sums a circle of diameter Params.PhotApertureDiam
// around the barycenter.
func (e *Engine) aperturePhotometry(o *Object) {
	r := e.Params.PhotApertureDiam / 2
	if r <= 0 {
		o.FluxAper, o.MagAper, o.MagAperErr = 0, 99, 99
		return
	}
	flux, n, clipped := e.sumEllipse(o, 1, 0, 1, r, r, r)
	if clipped {
		o.Flags |= FlagAperture
	}
	o.FluxAper = flux
	o.MagAper, o.MagAperErr = e.magnitude(flux, e.apertureVariance(o, flux, n))
}

// autoPhotometry measures the Kron radius and sums the elliptical aperture
// it defines.
func (e *Engine) autoPhotometry(o *Object) {
	p := e.Params
	f := e.Frame

	dx, dy := kronRadiusLimit*math.Sqrt(o.M2X), kronRadiusLimit*math.Sqrt(o.M2Y)
	var sumR, sumI float64
	for y := max(0, int(math.Floor(o.MY-dy))); y <= min(f.Height-1, int(math.Ceil(o.MY+dy))); y++ {
		row := f.RawRow(y)
		for x := max(0, int(math.Floor(o.MX-dx))); x <= min(f.Width-1, int(math.Ceil(o.MX+dx))); x++ {
			ex, ey := float64(x)-o.MX, float64(y)-o.MY
			r2 := o.CXX*ex*ex + o.CYY*ey*ey + o.CXY*ex*ey
			if r2 > kronRadiusLimit*kronRadiusLimit {
				continue
			}
			v := float64(row[x]) - o.Bkg
			sumR += math.Sqrt(r2) * v
			sumI += v
		}
	}
	kron := 0.0
	if sumI > 0 && sumR > 0 {
		kron = sumR / sumI
	}
	o.KronRadius = kron

	rad := math.Max(p.KronFactor*kron, p.KronMinRadius)
	flux, n, clipped := e.sumEllipse(o, o.CXX, o.CXY, o.CYY, rad, rad*math.Sqrt(o.M2X), rad*math.Sqrt(o.M2Y))
	if clipped {
		o.Flags |= FlagAperture
	}
	o.FluxAuto = flux
	o.MagAuto, o.MagAutoErr = e.magnitude(flux, e.apertureVariance(o, flux, n))
}

// sumEllipse adds the background-subtracted raw values of the frame pixels
// with cxx·dx² + cyy·dy² + cxy·dx·dy ≤ rad² around the barycenter. hx and hy
// bound the ellipse. clipped reports whether the ellipse left the frame.
func (e *Engine) sumEllipse(o *Object, cxx, cxy, cyy, rad, hx, hy float64) (flux float64, n int, clipped bool) {
	f := e.Frame
	r2 := rad * rad
	for y := int(math.Floor(o.MY - hy)); y <= int(math.Ceil(o.MY+hy)); y++ {
		for x := int(math.Floor(o.MX - hx)); x <= int(math.Ceil(o.MX+hx)); x++ {
			ex, ey := float64(x)-o.MX, float64(y)-o.MY
			if cxx*ex*ex+cyy*ey*ey+cxy*ex*ey > r2 {
				continue
			}
			if !f.inside(x, y) {
				clipped = true
				continue
			}
			flux += float64(f.at(x, y)) - o.Bkg
			n++
		}
	}
	return flux, n, clipped
}

func (e *Engine) apertureVariance(o *Object, flux float64, n int) float64 {
	v := float64(n) * o.BkgSigma * o.BkgSigma
	if e.Params.Gain > 0 && flux > 0 {
		v += flux / e.Params.Gain
	}
	return v
}
