/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package extract

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// maxClipIterations bounds SigmaClip when the clipped set keeps oscillating.
const maxClipIterations = 100

// minBackgroundSamples is the smallest annulus accepted as a local background.
const minBackgroundSamples = 8

// ClipStats holds the result of iterative sigma clipping.
type ClipStats struct {
	Mean       float64
	StdDev     float64
	N          int
	Iterations int
}

func (s ClipStats) String() string {
	return fmt.Sprintf("{Mean=%f, StdDev=%f, N=%d, Iterations=%d}", s.Mean, s.StdDev, s.N, s.Iterations)
}

// SigmaClip repeatedly keeps the samples within maxSigma standard deviations
// of the current mean and recomputes mean and deviation over them, until
// neither changes.
func SigmaClip(samples []float64, maxSigma float64) ClipStats {
	st, _ := sigmaClip(samples, maxSigma)
	return st
}

func sigmaClip(samples []float64, maxSigma float64) (ClipStats, []float64) {
	if len(samples) == 0 {
		return ClipStats{}, nil
	}
	kept := samples
	m, s := meanStdDev(kept)
	it := 0
	for it < maxClipIterations {
		it++
		next := make([]float64, 0, len(kept))
		lim := maxSigma * s
		for _, v := range samples {
			if math.Abs(v-m) <= lim {
				next = append(next, v)
			}
		}
		if len(next) == 0 {
			break
		}
		nm, ns := meanStdDev(next)
		kept = next
		if nm == m && ns == s {
			break
		}
		m, s = nm, ns
	}
	return ClipStats{Mean: m, StdDev: s, N: len(kept), Iterations: it}, kept
}

func meanStdDev(x []float64) (float64, float64) {
	if len(x) < 2 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// EstimateBackground returns the median over mesh cells of the sigma-clipped
// mean and deviation of the raw frame. A mesh of zero or less uses a single
// cell.
func EstimateBackground(f *Frame, mesh int, maxSigma float64) ClipStats {
	if mesh <= 0 {
		mesh = max(f.Width, f.Height)
	}
	var means, sigmas []float64
	samples := make([]float64, 0, mesh*mesh)
	for y0 := 0; y0 < f.Height; y0 += mesh {
		for x0 := 0; x0 < f.Width; x0 += mesh {
			samples = samples[:0]
			for y := y0; y < min(y0+mesh, f.Height); y++ {
				row := f.RawRow(y)
				for x := x0; x < min(x0+mesh, f.Width); x++ {
					samples = append(samples, float64(row[x]))
				}
			}
			st := SigmaClip(samples, maxSigma)
			if st.N == 0 {
				continue
			}
			means = append(means, st.Mean)
			sigmas = append(sigmas, st.StdDev)
		}
	}
	if len(means) == 0 {
		return ClipStats{}
	}
	return ClipStats{Mean: median(means), StdDev: median(sigmas), N: len(means)}
}

// localBackground clips the rectangular annulus of Params.BackThickness
// pixels around o's bounding box. Pixels above the detection level are left
// out. ok is false when too few samples remain.
func (e *Engine) localBackground(o *Object) (ClipStats, bool) {
	f := e.Frame
	t := e.Params.BackThickness
	inner := o.Bounds()
	outer := inner.Inset(-t).Intersect(f.Bounds())
	level := e.DetectionLevel()

	samples := make([]float64, 0, outer.Dx()*outer.Dy()-inner.Dx()*inner.Dy())
	for y := outer.Min.Y; y < outer.Max.Y; y++ {
		raw, conv := f.RawRow(y), f.ConvRow(y)
		for x := outer.Min.X; x < outer.Max.X; x++ {
			if y >= inner.Min.Y && y < inner.Max.Y && x >= inner.Min.X && x < inner.Max.X {
				continue
			}
			if float64(conv[x]) > level {
				continue
			}
			samples = append(samples, float64(raw[x]))
		}
	}
	if len(samples) < minBackgroundSamples {
		return ClipStats{}, false
	}
	return SigmaClip(samples, e.Params.BackClipSigma), true
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	if len(s)%2 == 1 {
		return s[len(s)/2]
	}
	return (s[len(s)/2-1] + s[len(s)/2]) / 2
}
