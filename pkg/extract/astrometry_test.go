package extract

import (
	"math"
	"testing"
)

type headerMap map[string]float64

func (h headerMap) GetDouble(key string) (float64, bool) {
	v, ok := h[key]
	return v, ok
}

func TestProjectRoundTrip(t *testing.T) {
	tests := []struct{ alpha, delta, a0, d0 float64 }{
		{150.01, 30.02, 150, 30},
		{359.99, -10, 0.01, -10.01},
		{10, 89.5, 10, 89.4},
		{200, -45, 200.05, -44.95},
	}
	for _, tt := range tests {
		xi, eta := project(tt.alpha, tt.delta, tt.a0, tt.d0)
		a, d := deproject(xi, eta, tt.a0, tt.d0)
		if math.Abs(wrapDeg(a-tt.alpha)) > 1e-9 || math.Abs(d-tt.delta) > 1e-9 {
			t.Errorf("(%.4f, %.4f): round trip gave (%.9f, %.9f)", tt.alpha, tt.delta, a, d)
		}
	}
}

func TestLinearFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		h       headerMap
		wantErr bool
	}{
		{"cd matrix", headerMap{
			"CRPIX1": 50.5, "CRPIX2": 40.5, "CRVAL1": 150, "CRVAL2": 2,
			"CD1_1": -2e-4, "CD1_2": 0, "CD2_1": 0, "CD2_2": 2e-4,
		}, false},
		{"cdelt", headerMap{
			"CRPIX1": 50.5, "CRPIX2": 40.5, "CRVAL1": 150, "CRVAL2": 2,
			"CDELT1": -2e-4, "CDELT2": 2e-4,
		}, false},
		{"no scale", headerMap{"CRPIX1": 50.5, "CRPIX2": 40.5, "CRVAL1": 150, "CRVAL2": 2}, true},
		{"no reference", headerMap{"CDELT1": -2e-4, "CDELT2": 2e-4}, true},
		{"partial cd", headerMap{
			"CRPIX1": 50.5, "CRPIX2": 40.5, "CRVAL1": 150, "CRVAL2": 2, "CD1_1": -2e-4,
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := LinearFromHeader(tt.h)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LinearFromHeader failed: %v", err)
			}
			a, d := l.PixelToWorld(49.5, 39.5)
			if math.Abs(a-150) > 1e-12 || math.Abs(d-2) > 1e-12 {
				t.Errorf("reference pixel maps to (%f, %f)", a, d)
			}
			a, d = l.PixelToWorld(59.5, 39.5)
			if want := 150 - 10*2e-4/math.Cos(2*deg); math.Abs(a-want) > 1e-7 || math.Abs(d-2) > 1e-7 {
				t.Errorf("ten pixels east maps to (%f, %f), want (%f, 2)", a, d, want)
			}
		})
	}
}

func TestLinearFromHeaderRotation(t *testing.T) {
	l, err := LinearFromHeader(headerMap{
		"CRPIX1": 1, "CRPIX2": 1, "CRVAL1": 0, "CRVAL2": 0,
		"CDELT1": 1e-3, "CDELT2": 1e-3, "CROTA2": 90,
	})
	if err != nil {
		t.Fatalf("LinearFromHeader failed: %v", err)
	}
	// A 90 degree rotation turns +x into +eta.
	a, d := l.PixelToWorld(10, 0)
	if math.Abs(wrapDeg(a)) > 1e-9 || math.Abs(d-0.01) > 1e-6 {
		t.Errorf("got (%f, %f), want (0, 0.01)", a, d)
	}
}

func TestFitPlateSolution(t *testing.T) {
	truth := &PlateSolution{
		Order:  2,
		Alpha0: 83.8, Delta0: -5.4,
		X0: 500, Y0: 400,
		Xi:  []float64{1e-3, -3e-4, 1e-6, 2e-10, -1e-10, 3e-11},
		Eta: []float64{-2e-3, 2e-7, 3e-4, -4e-11, 1e-10, 2e-10},
	}
	var matches []Match
	for y := 0.0; y <= 800; y += 100 {
		for x := 0.0; x <= 1000; x += 125 {
			a, d := truth.PixelToWorld(x, y)
			matches = append(matches, Match{X: x, Y: y, Alpha: a, Delta: d})
		}
	}

	for order := 2; order <= 3; order++ {
		sol, err := FitPlateSolution(matches, truth.Alpha0, truth.Delta0, order)
		if err != nil {
			t.Fatalf("order %d: FitPlateSolution failed: %v", order, err)
		}
		for _, pt := range [][2]float64{{0, 0}, {333, 777}, {1000, 800}, {612.5, 41}} {
			wa, wd := truth.PixelToWorld(pt[0], pt[1])
			ga, gd := sol.PixelToWorld(pt[0], pt[1])
			if math.Abs(wrapDeg(ga-wa))*3600 > 1e-3 || math.Abs(gd-wd)*3600 > 1e-3 {
				t.Errorf("order %d at %v: got (%.9f, %.9f), want (%.9f, %.9f)", order, pt, ga, gd, wa, wd)
			}
		}
	}
}

func TestFitPlateSolutionErrors(t *testing.T) {
	if _, err := FitPlateSolution(nil, 0, 0, 4); err == nil {
		t.Errorf("expected error for order 4")
	}
	few := []Match{{X: 0, Y: 0}, {X: 1, Y: 0}}
	if _, err := FitPlateSolution(few, 0, 0, 1); err == nil {
		t.Errorf("expected error for too few matches")
	}
}

func TestPolyTerms(t *testing.T) {
	got := polyTerms(2, 3, 2, nil)
	want := []float64{1, 2, 3, 4, 6, 9}
	if len(got) != len(want) {
		t.Fatalf("terms: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("term %d: got %f, want %f", i, got[i], want[i])
		}
	}
}
