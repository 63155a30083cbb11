package extract

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

// newTestEngine wraps pix in a frame with a zero background of unit sigma.
func newTestEngine(t *testing.T, w, h int, pix []float32, p *Params) *Engine {
	t.Helper()
	f, err := NewFrame(w, h, pix, nil)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	if p == nil {
		p = NewParams()
	}
	e, err := NewEngine(f, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.Background, e.Sigma = 0, 1
	return e
}

func addGaussian(pix []float32, w, h int, cx, cy, sigma, amp float64) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			pix[y*w+x] += float32(amp * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}
}

func fillRect(pix []float32, w int, r image.Rectangle, v float32) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			pix[y*w+x] = v
		}
	}
}

func chainPoints(list *ObjectList, i int) map[image.Point]bool {
	pts := make(map[image.Point]bool)
	for _, px := range list.Chain(i) {
		pts[image.Pt(px.X, px.Y)] = true
	}
	return pts
}

func TestScanSinglePixel(t *testing.T) {
	pix := make([]float32, 25)
	pix[2*5+2] = 10
	e := newTestEngine(t, 5, 5, pix, nil)

	list, err := e.Scan(image.Rect(0, 0, 5, 5), 5, 1)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("objects: got %d, want 1", list.Len())
	}
	o := list.Objects[0]
	if o.NPix != 1 {
		t.Errorf("NPix: got %d, want 1", o.NPix)
	}
	if o.MX != 2 || o.MY != 2 {
		t.Errorf("centroid: got (%.2f, %.2f), want (2, 2)", o.MX, o.MY)
	}
	if o.Flags.Has(FlagTruncated) {
		t.Errorf("interior pixel flagged truncated")
	}
}

func TestScanSeparateBlocks(t *testing.T) {
	const w, h = 20, 20
	pix := make([]float32, w*h)
	blocks := []image.Rectangle{image.Rect(3, 3, 6, 6), image.Rect(12, 10, 15, 13)}
	for _, b := range blocks {
		fillRect(pix, w, b, 100)
	}
	e := newTestEngine(t, w, h, pix, nil)

	list, err := e.Scan(image.Rect(0, 0, w, h), 50, 1)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("objects: got %d, want 2", list.Len())
	}
	found := make(map[image.Rectangle]bool)
	for i := range list.Objects {
		o := &list.Objects[i]
		if o.NPix != 9 {
			t.Errorf("object %d NPix: got %d, want 9", i, o.NPix)
		}
		found[o.Bounds()] = true
	}
	for _, b := range blocks {
		if !found[b] {
			t.Errorf("no object with bounds %v", b)
		}
	}
}

func TestScanTruncatedAtFrameEdge(t *testing.T) {
	tests := []struct {
		name string
		rect image.Rectangle
		want bool
	}{
		{"top row", image.Rect(4, 0, 7, 2), true},
		{"left column", image.Rect(0, 4, 2, 7), true},
		{"bottom row", image.Rect(4, 8, 7, 10), true},
		{"right column", image.Rect(8, 4, 10, 7), true},
		{"interior", image.Rect(3, 3, 6, 6), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pix := make([]float32, 100)
			fillRect(pix, 10, tt.rect, 20)
			e := newTestEngine(t, 10, 10, pix, nil)
			list, err := e.Scan(image.Rect(0, 0, 10, 10), 5, 1)
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if list.Len() != 1 {
				t.Fatalf("objects: got %d, want 1", list.Len())
			}
			if got := list.Objects[0].Flags.Has(FlagTruncated); got != tt.want {
				t.Errorf("truncated: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanShapes(t *testing.T) {
	tests := []struct {
		name    string
		rows    []string
		objects int
	}{
		{"diagonal pair", []string{
			".....",
			".#...",
			"..#..",
			".....",
		}, 1},
		{"anti-diagonal pair", []string{
			".....",
			"...#.",
			"..#..",
			".....",
		}, 1},
		{"U shape", []string{
			"#...#",
			"#...#",
			"#####",
		}, 1},
		{"inverted U", []string{
			"#####",
			"#...#",
			"#...#",
		}, 1},
		{"W shape", []string{
			"#.#.#",
			"#.#.#",
			"#####",
		}, 1},
		{"comb joined late", []string{
			"#.#.#.#",
			"#.#.#.#",
			"#.#.#.#",
			"#######",
		}, 1},
		{"spiral", []string{
			"#######",
			"#.....#",
			"#.###.#",
			"#.#.#.#",
			"#.#...#",
			"#.#####",
		}, 1},
		{"ring with island", []string{
			"#####",
			"#...#",
			"#.#.#",
			"#...#",
			"#####",
		}, 2},
		{"gap of one", []string{
			"#.#",
			"#.#",
		}, 2},
		{"touching frame corners", []string{
			"#...#",
			".....",
			"#...#",
		}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := len(tt.rows[0]), len(tt.rows)
			pix := make([]float32, w*h)
			for y, row := range tt.rows {
				for x, c := range row {
					if c == '#' {
						pix[y*w+x] = 10
					}
				}
			}
			e := newTestEngine(t, w, h, pix, nil)
			list, err := e.Scan(image.Rect(0, 0, w, h), 5, 1)
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if list.Len() != tt.objects {
				t.Errorf("objects: got %d, want %d", list.Len(), tt.objects)
			}
			checkPartition(t, e, list, 5, image.Rect(0, 0, w, h))
		})
	}
}

// checkPartition verifies that the objects of list cover every pixel above
// thresh exactly once, that each object is 8-connected and that no two
// objects touch.
func checkPartition(t *testing.T, e *Engine, list *ObjectList, thresh float64, r image.Rectangle) {
	t.Helper()
	owner := make(map[image.Point]int)
	for i := range list.Objects {
		o := &list.Objects[i]
		n := 0
		for p := o.First; p != NoPixel; p = list.Pixels[p].Next {
			px := list.Pixels[p]
			pt := image.Pt(px.X, px.Y)
			if prev, dup := owner[pt]; dup {
				t.Fatalf("pixel %v in objects %d and %d", pt, prev, i)
			}
			owner[pt] = i
			n++
			if n > o.NPix {
				t.Fatalf("object %d chain longer than NPix %d", i, o.NPix)
			}
		}
		if n != o.NPix {
			t.Errorf("object %d chain has %d pixels, NPix %d", i, n, o.NPix)
		}
		if o.Last == NoPixel || list.Pixels[o.Last].Next != NoPixel {
			t.Errorf("object %d chain not terminated at Last", i)
		}
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			above := float64(e.Frame.Conv[y*e.Frame.Width+x]) > thresh
			if _, ok := owner[image.Pt(x, y)]; ok != above {
				t.Errorf("pixel (%d,%d): above=%v owned=%v", x, y, above, ok)
			}
		}
	}

	for pt, i := range owner {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if j, ok := owner[pt.Add(image.Pt(dx, dy))]; ok && j != i {
					t.Errorf("objects %d and %d touch at %v", i, j, pt)
				}
			}
		}
	}

	for i := range list.Objects {
		pts := chainPoints(list, i)
		var start image.Point
		for pt := range pts {
			start = pt
			break
		}
		seen := map[image.Point]bool{start: true}
		queue := []image.Point{start}
		for len(queue) > 0 {
			pt := queue[0]
			queue = queue[1:]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					q := pt.Add(image.Pt(dx, dy))
					if pts[q] && !seen[q] {
						seen[q] = true
						queue = append(queue, q)
					}
				}
			}
		}
		if len(seen) != len(pts) {
			t.Errorf("object %d not connected: reached %d of %d pixels", i, len(seen), len(pts))
		}
	}
}

func TestScanRandomFieldPartition(t *testing.T) {
	const w, h = 64, 48
	for seed := uint32(1); seed <= 5; seed++ {
		var rng fastrand.RNG
		rng.Seed(seed)
		pix := make([]float32, w*h)
		for i := range pix {
			if rng.Uint32n(100) < 45 {
				pix[i] = 10
			}
		}
		e := newTestEngine(t, w, h, pix, nil)
		list, err := e.Scan(image.Rect(0, 0, w, h), 5, 1)
		if err != nil {
			t.Fatalf("seed %d: Scan failed: %v", seed, err)
		}
		checkPartition(t, e, list, 5, image.Rect(0, 0, w, h))
	}
}

func TestScanSubRectangle(t *testing.T) {
	const w, h = 20, 20
	pix := make([]float32, w*h)
	fillRect(pix, w, image.Rect(2, 2, 5, 5), 10)
	fillRect(pix, w, image.Rect(12, 12, 15, 15), 10)
	e := newTestEngine(t, w, h, pix, nil)

	list, err := e.Scan(image.Rect(10, 10, 20, 20), 5, 1)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("objects: got %d, want 1", list.Len())
	}
	if got := list.Objects[0].Bounds(); got != image.Rect(12, 12, 15, 15) {
		t.Errorf("bounds in frame coordinates: got %v", got)
	}
}

func TestScanMinArea(t *testing.T) {
	const w, h = 20, 10
	pix := make([]float32, w*h)
	pix[2*w+2] = 10
	fillRect(pix, w, image.Rect(5, 2, 7, 4), 10)
	fillRect(pix, w, image.Rect(10, 2, 13, 5), 10)

	tests := []struct {
		minArea int
		want    int
	}{
		{1, 3},
		{4, 2},
		{5, 1},
		{10, 0},
	}
	for _, tt := range tests {
		e := newTestEngine(t, w, h, pix, nil)
		list, err := e.Scan(image.Rect(0, 0, w, h), 5, tt.minArea)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if list.Len() != tt.want {
			t.Errorf("minArea %d: got %d objects, want %d", tt.minArea, list.Len(), tt.want)
		}
		for i := range list.Objects {
			if list.Objects[i].NPix < tt.minArea {
				t.Errorf("minArea %d: object %d has %d pixels", tt.minArea, i, list.Objects[i].NPix)
			}
		}
	}
}

func TestScanThresholdIsStrict(t *testing.T) {
	pix := []float32{5, 5, 5, 5, 6, 5, 5, 5, 5}
	e := newTestEngine(t, 3, 3, pix, nil)
	list, err := e.Scan(image.Rect(0, 0, 3, 3), 5, 1)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if list.Len() != 1 || list.Objects[0].NPix != 1 {
		t.Fatalf("expected only the pixel above 5, got %d objects", list.Len())
	}
	if list.Objects[0].Thresh != 5 {
		t.Errorf("Thresh: got %f, want 5 above background", list.Objects[0].Thresh)
	}
}

func TestScanCapacityOverflow(t *testing.T) {
	const w, h = 20, 20
	pix := make([]float32, w*h)
	fillRect(pix, w, image.Rect(2, 2, 5, 5), 10)
	fillRect(pix, w, image.Rect(12, 12, 15, 15), 10)

	tests := []struct {
		name       string
		maxPixels  int
		maxObjects int
		want       error
	}{
		{"pixels", 5, 0, ErrPixelOverflow},
		{"objects", 0, 1, ErrObjectOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParams()
			p.MaxPixels, p.MaxObjects = tt.maxPixels, tt.maxObjects
			e := newTestEngine(t, w, h, pix, p)
			list, err := e.Scan(image.Rect(0, 0, w, h), 5, 1)
			if list != nil {
				t.Errorf("expected no partial list")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error: got %v, want %v", err, tt.want)
			}
			if !IsFatal(err) {
				t.Errorf("expected fatal error, got %T", err)
			}
		})
	}
}

func TestPreanalyseMoments(t *testing.T) {
	const w, h = 21, 21
	pix := make([]float32, w*h)
	addGaussian(pix, w, h, 10, 10, 2, 1000)
	e := newTestEngine(t, w, h, pix, nil)
	list, err := e.Scan(image.Rect(0, 0, w, h), 1, 1)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("objects: got %d, want 1", list.Len())
	}
	o := list.Objects[0]
	if math.Abs(o.MX-10) > 1e-3 || math.Abs(o.MY-10) > 1e-3 {
		t.Errorf("centroid: got (%.4f, %.4f), want (10, 10)", o.MX, o.MY)
	}
	if math.Abs(o.A-o.B) > 1e-3 {
		t.Errorf("round source: A=%.4f B=%.4f", o.A, o.B)
	}
	if o.A < 1.7 || o.A > 2.1 {
		t.Errorf("A: got %.3f, want about 2", o.A)
	}
	if o.Peak != 1000 || o.PeakX != 10 || o.PeakY != 10 {
		t.Errorf("peak: got %.1f at (%d,%d)", o.Peak, o.PeakX, o.PeakY)
	}
}

func TestEllipseSingularFix(t *testing.T) {
	a, b, _, cxx, cyy, cxy, x2, y2 := ellipse(0, 0, 0)
	if x2 != 1.0/12 || y2 != 1.0/12 {
		t.Errorf("moments not widened: %f %f", x2, y2)
	}
	if math.IsInf(cxx, 0) || math.IsNaN(cyy) || cxy != 0 {
		t.Errorf("degenerate quadratic form: %f %f %f", cxx, cyy, cxy)
	}
	if math.Abs(a-b) > 1e-12 || a <= 0 {
		t.Errorf("axes: a=%f b=%f", a, b)
	}
}
