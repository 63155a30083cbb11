package extract

import "math"

// fwhmToSigma converts a Gaussian FWHM to its standard deviation.
const fwhmToSigma = 1 / 2.3548

// classifier is a small fixed-weight network. Inputs are the mean log ratio
// of measured to point-source isophotal area over the inner and outer
// isophotes and the log ratio of FWHM to seeing; each feeds one tanh unit.
type classifier struct {
	hidden [3]float64
	output [3]float64
	bias   float64
}

var starClassifier = classifier{
	hidden: [3]float64{2.0, 2.0, 2.5},
	output: [3]float64{-2.2, -2.2, -2.0},
	bias:   2.5,
}

// minExpectedArea is the smallest point-source area, in pixels, that gives a
// usable isophote feature.
const minExpectedArea = 4.0

// starClass returns the probability that o is a point source for the given
// seeing FWHM in pixels. Without usable features it returns 0.5.
func (c *classifier) starClass(o *Object, levels [NIso]float64, seeing float64) float64 {
	if seeing <= 0 || o.Peak <= 0 {
		return 0.5
	}
	s2 := seeing * fwhmToSigma
	s2 *= s2

	var in [3]float64
	var used [3]bool
	var sum [2]float64
	var n [2]int
	for i := 1; i < NIso; i++ {
		if levels[i] <= 0 || levels[i] >= o.Peak || o.Iso[i] == 0 {
			continue
		}
		expected := 2 * math.Pi * s2 * math.Log(o.Peak/levels[i])
		if expected < minExpectedArea {
			continue
		}
		x := math.Log(float64(o.Iso[i]) / expected)
		x = math.Max(-3, math.Min(3, x))
		g := 0
		if i >= NIso/2 {
			g = 1
		}
		sum[g] += x
		n[g]++
	}
	for g := 0; g < 2; g++ {
		if n[g] > 0 {
			in[g] = sum[g] / float64(n[g])
			used[g] = true
		}
	}
	if o.FWHM > 0 {
		in[2] = math.Log(o.FWHM / seeing)
		used[2] = true
	}
	if !used[0] && !used[1] && !used[2] {
		return 0.5
	}

	act := c.bias
	for i := range in {
		act += c.output[i] * math.Tanh(c.hidden[i]*in[i])
	}
	return 1 / (1 + math.Exp(-act))
}

// estimateSeeing returns the median FWHM of measured objects free of
// saturation, truncation, blending and crowding.
func estimateSeeing(objs []*Object) float64 {
	const bad = FlagSaturated | FlagTruncated | FlagMerged | FlagCrowded | FlagDeblendOverflow | FlagOverflow
	var v []float64
	for _, o := range objs {
		if o.FWHM > 0 && o.Flags&bad == 0 {
			v = append(v, o.FWHM)
		}
	}
	return median(v)
}
