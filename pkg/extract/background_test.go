package extract

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func noisySamples(n int, mean, spread float64, seed uint32) []float64 {
	var rng fastrand.RNG
	rng.Seed(seed)
	out := make([]float64, n)
	for i := range out {
		// Sum of uniforms, roughly normal.
		s := 0.0
		for k := 0; k < 12; k++ {
			s += float64(rng.Uint32()) / (1 << 32)
		}
		out[i] = mean + spread*(s-6)
	}
	return out
}

func TestSigmaClipRejectsOutliers(t *testing.T) {
	samples := noisySamples(2000, 100, 5, 1)
	for i := 0; i < 40; i++ {
		samples = append(samples, 5000)
	}
	st := SigmaClip(samples, 3)
	if math.Abs(st.Mean-100) > 1 {
		t.Errorf("Mean: got %.3f, want about 100", st.Mean)
	}
	if st.StdDev < 4 || st.StdDev > 6 {
		t.Errorf("StdDev: got %.3f, want about 5", st.StdDev)
	}
	if st.N > 2000 {
		t.Errorf("N: got %d, outliers kept", st.N)
	}
	if st.Iterations < 1 || st.Iterations > maxClipIterations {
		t.Errorf("Iterations: got %d", st.Iterations)
	}
}

func TestSigmaClipIsIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		sigma   float64
	}{
		{"normal with outliers", append(noisySamples(500, 10, 2, 2), 100, 200, -50), 3},
		{"pure noise", noisySamples(500, 0, 1, 3), 3},
		{"constant", []float64{7, 7, 7, 7}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, kept := sigmaClip(tt.samples, tt.sigma)
			again := SigmaClip(kept, tt.sigma)
			if again.Mean != first.Mean || again.StdDev != first.StdDev || again.N != first.N {
				t.Errorf("second pass changed result: %v -> %v", first, again)
			}
		})
	}
}

func TestSigmaClipEdgeCases(t *testing.T) {
	if st := SigmaClip(nil, 3); st.N != 0 || st.Mean != 0 {
		t.Errorf("empty input: got %v", st)
	}
	st := SigmaClip([]float64{42}, 3)
	if st.Mean != 42 || st.StdDev != 0 || st.N != 1 {
		t.Errorf("single sample: got %v", st)
	}
}

func TestEstimateBackground(t *testing.T) {
	const w, h = 128, 96
	pix := make([]float32, w*h)
	for i, v := range noisySamples(w*h, 200, 4, 9) {
		pix[i] = float32(v)
	}
	addGaussian(pix, w, h, 40, 40, 2, 5000)
	addGaussian(pix, w, h, 100, 70, 3, 8000)
	f, err := NewFrame(w, h, pix, nil)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	for _, mesh := range []int{0, 32, 64} {
		st := EstimateBackground(f, mesh, 3)
		if math.Abs(st.Mean-200) > 1 {
			t.Errorf("mesh %d: Mean %.3f, want about 200", mesh, st.Mean)
		}
		if math.Abs(st.StdDev-4) > 1 {
			t.Errorf("mesh %d: StdDev %.3f, want about 4", mesh, st.StdDev)
		}
	}
}

func TestLocalBackground(t *testing.T) {
	const w, h = 40, 40
	pix := make([]float32, w*h)
	for i := range pix {
		pix[i] = 50
	}
	addGaussian(pix, w, h, 20, 20, 1.5, 1000)
	p := NewParams()
	e := newTestEngine(t, w, h, pix, p)
	e.Background = 50

	o := &Object{XMin: 17, XMax: 23, YMin: 17, YMax: 23}
	st, ok := e.localBackground(o)
	if !ok {
		t.Fatal("expected enough annulus samples")
	}
	if math.Abs(st.Mean-50) > 0.5 {
		t.Errorf("Mean: got %.3f, want about 50", st.Mean)
	}

	p.BackThickness = 1
	corner := &Object{XMin: 0, XMax: 0, YMin: 0, YMax: 0}
	if _, ok := e.localBackground(corner); ok {
		t.Errorf("expected too few samples in a clipped one-pixel annulus")
	}
}
