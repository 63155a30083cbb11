package extract

import (
	"math"

	"github.com/valyala/fastrand"
)

// node is one sub-object in the threshold ladder.
type node struct {
	level, idx int
	children   []*node
}

// multi reports whether any node of the subtree has at least two children.
func (n *node) multi() bool {
	if len(n.children) >= 2 {
		return true
	}
	for _, c := range n.children {
		if c.multi() {
			return true
		}
	}
	return false
}

// leaf is an accepted component together with the profile used to claim
// leftover pixels.
type leaf struct {
	n      *node
	merged bool

	mx, my        float64
	cxx, cyy, cxy float64
	amp           float64
}

// Deblend re-thresholds object idx of list at a ladder of levels and decides
// whether it is one object or several. The result always owns a fresh arena
// and partitions the pixels of the input object. A nil rng is replaced by
// one seeded from Params.Seed.
func (e *Engine) Deblend(list *ObjectList, idx int, rng *fastrand.RNG) (*ObjectList, error) {
	p := e.Params
	root := &list.Objects[idx]
	if rng == nil {
		rng = groupRNG(p.Seed, idx)
	}

	levels := make([]*ObjectList, 1, p.DeblendNThresh)
	base := &ObjectList{Thresh: e.Background + root.Thresh}
	o, err := base.appendChain(list, idx, p.MaxPixels)
	if err != nil {
		return nil, &FatalError{Op: "deblend", Err: err}
	}
	base.Objects = append(base.Objects, o)
	levels[0] = base
	tree := &node{level: 0, idx: 0}
	nodes := [][]*node{{tree}}

	t0, peak := root.Thresh, root.CPeak
	if t0 > 0 && peak > t0 {
		ras := denseRaster(list, idx)
		labels := make([]int32, ras.width*ras.height)
		for k := 1; k < p.DeblendNThresh; k++ {
			rel := e.ladderLevel(t0, peak, k, p.DeblendNThresh)
			lvl := &ObjectList{Thresh: e.Background + rel}
			if err := e.scan(ras, lvl.Thresh, p.DeblendMinArea, lvl); err != nil {
				return nil, &FatalError{Op: "deblend", Err: err}
			}
			if lvl.Len() == 0 {
				break
			}
			for i := range lvl.Objects {
				lvl.Objects[i].Thresh = rel
			}

			// Label the previous level's pixels with their object index.
			below := levels[k-1]
			for i := range labels {
				labels[i] = -1
			}
			for j := range below.Objects {
				for q := below.Objects[j].First; q != NoPixel; q = below.Pixels[q].Next {
					px := &below.Pixels[q]
					labels[(px.Y-ras.oy)*ras.width+px.X-ras.ox] = int32(j)
				}
			}

			cur := make([]*node, lvl.Len())
			for j := range lvl.Objects {
				cur[j] = &node{level: k, idx: j}
				px := &lvl.Pixels[lvl.Objects[j].First]
				label := labels[(px.Y-ras.oy)*ras.width+px.X-ras.ox]
				if label < 0 {
					continue
				}
				parent := nodes[k-1][label]
				if len(parent.children) >= p.DeblendMaxChildren {
					return nil, &FatalError{Op: "deblend", Err: ErrDeblendOverflow}
				}
				parent.children = append(parent.children, cur[j])
			}
			levels = append(levels, lvl)
			nodes = append(nodes, cur)
		}
	}

	minFlux := p.DeblendMinCont * root.Flux
	leaves, split := resolve(tree, levels, minFlux)
	if !split {
		out := &ObjectList{Thresh: base.Thresh}
		o := base.Objects[0]
		if tree.multi() {
			o.Flags |= FlagMerged
		}
		out.Objects = append(out.Objects, o)
		out.Pixels = base.Pixels
		out.NPix = base.NPix
		return out, nil
	}

	out, err := e.gatherup(list, idx, levels, leaves, rng)
	if err != nil {
		return nil, &FatalError{Op: "deblend", Err: err}
	}
	return out, nil
}

// groupRNG returns the generator for root group i. fastrand reseeds a zero
// state from the clock, so a zero seed is replaced by a fixed constant.
func groupRNG(seed uint32, i int) *fastrand.RNG {
	s := seed + uint32(i)
	if s == 0 {
		s = 0x9e3779b9
	}
	rng := &fastrand.RNG{}
	rng.Seed(s)
	return rng
}

// ladderLevel returns the k-th of n thresholds above the background between
// t0 and peak.
func (e *Engine) ladderLevel(t0, peak float64, k, n int) float64 {
	if e.Params.Detector == DetectorPhotographic {
		return t0 + (peak-t0)*float64(k)/float64(n)
	}
	return t0 * math.Pow(peak/t0, float64(k)/float64(n))
}

// resolve prunes the subtree of n. It returns the accepted components and
// whether the subtree was split into more than one.
func resolve(n *node, levels []*ObjectList, minFlux float64) ([]*leaf, bool) {
	var sig []*node
	for _, c := range n.children {
		if levels[c.level].Objects[c.idx].Flux > minFlux {
			sig = append(sig, c)
		}
	}
	switch {
	case len(sig) >= 2:
		var out []*leaf
		for _, c := range sig {
			l, _ := resolve(c, levels, minFlux)
			out = append(out, l...)
		}
		return out, true
	case len(sig) == 1:
		if l, split := resolve(sig[0], levels, minFlux); split {
			return l, true
		}
	}
	return []*leaf{{n: n, merged: n.multi()}}, false
}

// gatherup builds the output list from the accepted leaves and hands every
// root pixel that no leaf covers to one of them, drawn with probability
// proportional to each leaf's elliptical Gaussian profile at that pixel.
func (e *Engine) gatherup(list *ObjectList, idx int, levels []*ObjectList, leaves []*leaf, rng *fastrand.RNG) (*ObjectList, error) {
	p := e.Params
	root := &list.Objects[idx]
	out := &ObjectList{Thresh: e.Background + root.Thresh}
	out.Objects = make([]Object, 0, len(leaves))

	w := root.XMax - root.XMin + 1
	claimed := make([]bool, w*(root.YMax-root.YMin+1))
	for _, lf := range leaves {
		src := levels[lf.n.level]
		obj := &src.Objects[lf.n.idx]
		for q := obj.First; q != NoPixel; q = src.Pixels[q].Next {
			px := &src.Pixels[q]
			claimed[(px.Y-root.YMin)*w+px.X-root.XMin] = true
		}
		lf.mx, lf.my = obj.MX, obj.MY
		lf.cxx, lf.cyy, lf.cxy = obj.CXX, obj.CYY, obj.CXY
		lf.amp = obj.Thresh * math.Exp(float64(obj.NPix)/(2*math.Pi*obj.A*obj.B))
		if lim := 4 * obj.CPeak; lf.amp > lim {
			lf.amp = lim
		}

		o, err := out.appendChain(src, lf.n.idx, p.MaxPixels)
		if err != nil {
			return nil, err
		}
		o.Thresh = root.Thresh
		if lf.merged {
			o.Flags |= FlagMerged
		}
		out.Objects = append(out.Objects, o)
	}

	cum := make([]float64, len(leaves))
	for q := root.First; q != NoPixel; q = list.Pixels[q].Next {
		px := list.Pixels[q]
		if claimed[(px.Y-root.YMin)*w+px.X-root.XMin] {
			continue
		}
		i := assign(leaves, float64(px.X), float64(px.Y), cum, rng)
		if err := out.link(&out.Objects[i], px, p.MaxPixels); err != nil {
			return nil, err
		}
	}

	for i := range out.Objects {
		e.preanalyse(out.Pixels, &out.Objects[i], e.Background)
	}
	return out, nil
}

// weightFloor is the total weight under which the draw falls back to the
// nearest leaf.
const weightFloor = 1e-31

func assign(leaves []*leaf, x, y float64, cum []float64, rng *fastrand.RNG) int {
	total := 0.0
	for i, lf := range leaves {
		dx, dy := x-lf.mx, y-lf.my
		d := lf.cxx*dx*dx + lf.cyy*dy*dy + lf.cxy*dx*dy
		total += lf.amp * math.Exp(-0.5*d)
		cum[i] = total
	}
	if total < weightFloor || math.IsNaN(total) {
		return nearestLeaf(leaves, x, y)
	}
	u := float64(rng.Uint32()) / (1 << 32) * total
	for i, c := range cum {
		if u < c {
			return i
		}
	}
	return len(leaves) - 1
}

// nearestLeaf returns the leaf with the smallest quadratic-form distance to
// (x, y); the lowest index wins ties.
func nearestLeaf(leaves []*leaf, x, y float64) int {
	best, bestD := 0, math.Inf(1)
	for i, lf := range leaves {
		dx, dy := x-lf.mx, y-lf.my
		d := lf.cxx*dx*dx + lf.cyy*dy*dy + lf.cxy*dx*dy
		if d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
