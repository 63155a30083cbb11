package extract

import (
	"image"
	"math"
)

// raster is the window a scan runs over. Pixel (x, y) of the window is at
// base + y*stride + x in raw and conv, and at (ox+x, oy+y) in the frame.
type raster struct {
	ox, oy        int
	width, height int
	stride, base  int
	raw, conv     []float32
}

func (r *raster) at(x, y int) (float32, float32) {
	i := r.base + y*r.stride + x
	return r.raw[i], r.conv[i]
}

// denseRaster copies the pixels of object idx into a raster covering its
// bounding box. Cells outside the object read as -Inf in the convolved plane
// so no threshold ever selects them.
func denseRaster(list *ObjectList, idx int) *raster {
	o := &list.Objects[idx]
	w, h := o.XMax-o.XMin+1, o.YMax-o.YMin+1
	r := &raster{
		ox: o.XMin, oy: o.YMin,
		width: w, height: h,
		stride: w,
		raw:    make([]float32, w*h),
		conv:   make([]float32, w*h),
	}
	negInf := float32(math.Inf(-1))
	for i := range r.conv {
		r.conv[i] = negInf
	}
	for p := o.First; p != NoPixel; p = list.Pixels[p].Next {
		px := &list.Pixels[p]
		i := (px.Y-o.YMin)*w + px.X - o.XMin
		r.raw[i] = px.Value
		r.conv[i] = px.CValue
	}
	return r
}

type marker uint8

const (
	markNone       marker = iota
	markStart             // first segment of an object in the row
	markStartCont         // later segment of an object already started in the row
	markEndPending        // segment ended, object continues further right
	markEnd               // last segment of an object in the row
)

type status uint8

const (
	statusComplete status = iota
	statusIncomplete
	statusObject
)

// segInfo accumulates an open object's chain while segments are joined.
type segInfo struct {
	npix        int
	first, last int
}

var emptySeg = segInfo{first: NoPixel, last: NoPixel}

// merge appends b's chain to a's.
func (a *segInfo) merge(b *segInfo, pixels []Pixel) {
	a.npix += b.npix
	if a.first == NoPixel {
		a.first, a.last = b.first, b.last
	} else if b.last != NoPixel {
		pixels[a.last].Next = b.first
		a.last = b.last
	}
}

const startUnknown = -1

// Scan extracts the 8-connected groups of pixels whose convolved value is
// above thresh inside r. Groups smaller than minArea are dropped.
func (e *Engine) Scan(r image.Rectangle, thresh float64, minArea int) (*ObjectList, error) {
	f := e.Frame
	r = r.Intersect(f.Bounds())
	list := &ObjectList{Thresh: thresh}
	if r.Empty() {
		return list, nil
	}
	ras := &raster{
		ox: r.Min.X, oy: r.Min.Y,
		width: r.Dx(), height: r.Dy(),
		stride: f.Width,
		base:   r.Min.Y*f.Width + r.Min.X,
		raw:    f.Raw,
		conv:   f.Conv,
	}
	if err := e.scan(ras, thresh, minArea, list); err != nil {
		return nil, &FatalError{Op: "scan", Err: err}
	}
	return list, nil
}

// scan is a single-pass Lutz labeler. Markers written while reading row y
// describe the segments of row y and are consumed while reading row y+1; a
// virtual column and row below threshold close everything still open.
func (e *Engine) scan(r *raster, thresh float64, minArea int, list *ObjectList) error {
	w, h := r.width, r.height
	p := e.Params
	rel := thresh - e.Background

	markers := make([]marker, w+1)
	store := make([]segInfo, w+1)
	info := make([]segInfo, w+2)
	start := make([]int, w+2)
	end := make([]int, w+2)
	stack := make([]status, 0, w+2)

	push := func(s status) { stack = append(stack, s) }
	pop := func() status {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return s
	}

	co := 0
	for yl := 0; yl <= h; yl++ {
		ps := statusComplete
		inSeg := false
		for xl := 0; xl <= w; xl++ {
			prev := markers[xl]
			markers[xl] = markNone

			above := false
			var raw, cval float32
			if xl < w && yl < h {
				raw, cval = r.at(xl, yl)
				above = float64(cval) > thresh
			}

			if above {
				if !inSeg {
					inSeg = true
					if ps == statusObject {
						if start[co] == startUnknown {
							markers[xl] = markStart
							start[co] = xl
						} else {
							markers[xl] = markStartCont
						}
					} else {
						push(ps)
						markers[xl] = markStart
						co++
						start[co] = xl
						ps = statusComplete
						info[co] = emptySeg
					}
				}
				n, err := list.addPixel(Pixel{X: r.ox + xl, Y: r.oy + yl, Value: raw, CValue: cval}, p.MaxPixels)
				if err != nil {
					return err
				}
				in := &info[co]
				if in.first == NoPixel {
					in.first = n
				} else {
					list.Pixels[in.last].Next = n
				}
				in.last = n
				in.npix++
			}

			switch prev {
			case markStart:
				push(ps)
				if !inSeg {
					push(statusComplete)
					co++
					info[co] = store[xl]
					start[co] = startUnknown
				} else {
					info[co].merge(&store[xl], list.Pixels)
				}
				ps = statusObject
			case markStartCont:
				if inSeg && ps == statusComplete {
					pop()
					xl2 := start[co]
					info[co-1].merge(&info[co], list.Pixels)
					co--
					if start[co] == startUnknown {
						start[co] = xl2
					} else {
						markers[xl2] = markStartCont
					}
				}
				ps = statusObject
			case markEndPending:
				ps = statusIncomplete
			case markEnd:
				ps = pop()
				if !inSeg && ps == statusComplete {
					if start[co] == startUnknown {
						if info[co].npix >= minArea {
							if err := e.emit(list, &info[co], rel); err != nil {
								return err
							}
						}
					} else {
						markers[end[co]] = markEnd
						store[start[co]] = info[co]
					}
					co--
					ps = pop()
				}
			}

			if !above && inSeg {
				inSeg = false
				if ps != statusComplete {
					markers[xl] = markEndPending
					end[co] = xl
				} else {
					ps = pop()
					markers[xl] = markEnd
					store[start[co]] = info[co]
					co--
				}
			}
		}
	}
	return nil
}

func (e *Engine) emit(list *ObjectList, in *segInfo, rel float64) error {
	o := Object{First: in.first, Last: in.last, NPix: in.npix, Thresh: rel}
	e.preanalyse(list.Pixels, &o, e.Background)
	return list.addObject(o, e.Params.MaxObjects)
}
