package extract

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Astrometry maps 0-based pixel coordinates to right ascension and
// declination in degrees.
type Astrometry interface {
	PixelToWorld(x, y float64) (alpha, delta float64)
}

// HeaderValues is the subset of a FITS header needed to build a mapping.
type HeaderValues interface {
	GetDouble(key string) (float64, bool)
}

// LinearAstrometry is a CD-matrix plate scale around a reference pixel with
// a gnomonic projection onto the sky.
type LinearAstrometry struct {
	// FITS 1-based reference pixel.
	CRPix1, CRPix2 float64
	CRVal1, CRVal2 float64
	CD             [2][2]float64
}

func (l *LinearAstrometry) PixelToWorld(x, y float64) (float64, float64) {
	dx, dy := x+1-l.CRPix1, y+1-l.CRPix2
	xi := l.CD[0][0]*dx + l.CD[0][1]*dy
	eta := l.CD[1][0]*dx + l.CD[1][1]*dy
	return deproject(xi, eta, l.CRVal1, l.CRVal2)
}

// LinearFromHeader reads CRPIX, CRVAL and either the CD matrix or
// CDELT/CROTA2 from h.
func LinearFromHeader(h HeaderValues) (*LinearAstrometry, error) {
	var l LinearAstrometry
	var ok1, ok2, ok3, ok4 bool
	l.CRPix1, ok1 = h.GetDouble("CRPIX1")
	l.CRPix2, ok2 = h.GetDouble("CRPIX2")
	l.CRVal1, ok3 = h.GetDouble("CRVAL1")
	l.CRVal2, ok4 = h.GetDouble("CRVAL2")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("header lacks CRPIX/CRVAL keywords")
	}
	if cd11, ok := h.GetDouble("CD1_1"); ok {
		cd12, _ := h.GetDouble("CD1_2")
		cd21, _ := h.GetDouble("CD2_1")
		cd22, ok := h.GetDouble("CD2_2")
		if !ok {
			return nil, fmt.Errorf("header has CD1_1 but no CD2_2")
		}
		l.CD = [2][2]float64{{cd11, cd12}, {cd21, cd22}}
		return &l, nil
	}
	c1, ok1 := h.GetDouble("CDELT1")
	c2, ok2 := h.GetDouble("CDELT2")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("header lacks CD matrix and CDELT keywords")
	}
	rot, _ := h.GetDouble("CROTA2")
	s, c := math.Sincos(rot * math.Pi / 180)
	l.CD = [2][2]float64{{c1 * c, -c2 * s}, {c1 * s, c2 * c}}
	return &l, nil
}

// Match pairs a measured pixel position with a reference sky position.
type Match struct {
	X, Y         float64
	Alpha, Delta float64
}

// PlateSolution maps pixels to standard coordinates with a polynomial of
// order 1 to 3 per axis, then deprojects around the tangent point.
type PlateSolution struct {
	Order          int
	Alpha0, Delta0 float64
	X0, Y0         float64
	Xi, Eta        []float64
}

func (s *PlateSolution) PixelToWorld(x, y float64) (float64, float64) {
	terms := polyTerms(x-s.X0, y-s.Y0, s.Order, nil)
	var xi, eta float64
	for i, t := range terms {
		xi += s.Xi[i] * t
		eta += s.Eta[i] * t
	}
	return deproject(xi, eta, s.Alpha0, s.Delta0)
}

// FitPlateSolution fits a polynomial plate solution of the given order
// through matches by least squares, with the tangent point at
// (alpha0, delta0).
func FitPlateSolution(matches []Match, alpha0, delta0 float64, order int) (*PlateSolution, error) {
	if order < 1 || order > 3 {
		return nil, fmt.Errorf("plate solution order must be 1 to 3, got %d", order)
	}
	nt := (order + 1) * (order + 2) / 2
	if len(matches) < nt {
		return nil, fmt.Errorf("order %d needs at least %d matches, got %d", order, nt, len(matches))
	}

	s := &PlateSolution{Order: order, Alpha0: alpha0, Delta0: delta0}
	for _, m := range matches {
		s.X0 += m.X
		s.Y0 += m.Y
	}
	s.X0 /= float64(len(matches))
	s.Y0 /= float64(len(matches))

	A := mat.NewDense(len(matches), nt, nil)
	bx := mat.NewVecDense(len(matches), nil)
	by := mat.NewVecDense(len(matches), nil)
	terms := make([]float64, 0, nt)
	for i, m := range matches {
		terms = polyTerms(m.X-s.X0, m.Y-s.Y0, order, terms[:0])
		A.SetRow(i, terms)
		xi, eta := project(m.Alpha, m.Delta, alpha0, delta0)
		bx.SetVec(i, xi)
		by.SetVec(i, eta)
	}

	var qr mat.QR
	qr.Factorize(A)
	var cx, cy mat.VecDense
	if err := qr.SolveVecTo(&cx, false, bx); err != nil {
		return nil, fmt.Errorf("solving xi coefficients: %w", err)
	}
	if err := qr.SolveVecTo(&cy, false, by); err != nil {
		return nil, fmt.Errorf("solving eta coefficients: %w", err)
	}
	s.Xi = make([]float64, nt)
	s.Eta = make([]float64, nt)
	for i := 0; i < nt; i++ {
		s.Xi[i] = cx.AtVec(i)
		s.Eta[i] = cy.AtVec(i)
	}
	return s, nil
}

// polyTerms appends x^i·y^j for every i+j ≤ order, by increasing degree.
func polyTerms(x, y float64, order int, dst []float64) []float64 {
	for d := 0; d <= order; d++ {
		for j := 0; j <= d; j++ {
			dst = append(dst, math.Pow(x, float64(d-j))*math.Pow(y, float64(j)))
		}
	}
	return dst
}

const deg = math.Pi / 180

// deproject converts standard coordinates in degrees around the tangent
// point (a0, d0) to sky coordinates in degrees.
func deproject(xi, eta, a0, d0 float64) (float64, float64) {
	x, y := xi*deg, eta*deg
	sd, cd := math.Sincos(d0 * deg)
	den := cd - y*sd
	alpha := a0 + math.Atan2(x, den)/deg
	delta := math.Atan2(y*cd+sd, math.Hypot(x, den)) / deg
	if alpha < 0 {
		alpha += 360
	} else if alpha >= 360 {
		alpha -= 360
	}
	return alpha, delta
}

// project is the inverse of deproject.
func project(alpha, delta, a0, d0 float64) (float64, float64) {
	sd0, cd0 := math.Sincos(d0 * deg)
	sd, cd := math.Sincos(delta * deg)
	sa, ca := math.Sincos((alpha - a0) * deg)
	den := sd*sd0 + cd*cd0*ca
	return cd * sa / den / deg, (sd*cd0 - cd*sd0*ca) / den / deg
}

// worldCoordinates sets the sky position of o and propagates its second
// moments through the local Jacobian of the mapping.
func (e *Engine) worldCoordinates(o *Object) {
	as := e.Astrometry
	a, d := as.PixelToWorld(o.MX, o.MY)
	ax, dx := as.PixelToWorld(o.MX+1, o.MY)
	ay, dy := as.PixelToWorld(o.MX, o.MY+1)
	cosd := math.Cos(d * deg)
	j11, j12 := wrapDeg(ax-a)*cosd, wrapDeg(ay-a)*cosd
	j21, j22 := dx-d, dy-d

	// M' = J M Jᵀ
	m11, m12, m22 := o.M2X, o.MXY, o.M2Y
	x2 := j11*j11*m11 + 2*j11*j12*m12 + j12*j12*m22
	y2 := j21*j21*m11 + 2*j21*j22*m12 + j22*j22*m22
	xy := j11*j21*m11 + (j11*j22+j12*j21)*m12 + j12*j22*m22

	o.Alpha, o.Delta = a, d
	aw, bw, th := axes(x2, y2, xy)
	o.AWorld, o.BWorld, o.ThetaWorld = aw, bw, th/deg
	o.HasWorld = true
}

func wrapDeg(v float64) float64 {
	switch {
	case v > 180:
		return v - 360
	case v < -180:
		return v + 360
	}
	return v
}
