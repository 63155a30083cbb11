package extract

import (
	"fmt"
	"image"
	"strings"
)

// NIso is the number of isophotal levels measured for every object.
const NIso = 8

// NoPixel terminates a pixel chain.
const NoPixel = -1

// Pixel is one element of an object list's pixel arena.
type Pixel struct {
	X, Y   int
	Value  float32 // raw
	CValue float32 // convolved
	Next   int
}

// Flag is a per-object condition bit.
type Flag uint16

const (
	FlagCrowded Flag = 1 << iota
	FlagMerged
	FlagSaturated
	FlagTruncated
	FlagAperture
	FlagIsophotal
	FlagDeblendOverflow
	FlagOverflow
)

var flagLetters = [...]struct {
	flag   Flag
	letter byte
}{
	{FlagCrowded, 'C'},
	{FlagMerged, 'M'},
	{FlagSaturated, 'S'},
	{FlagTruncated, 'T'},
	{FlagAperture, 'A'},
	{FlagIsophotal, 'I'},
	{FlagDeblendOverflow, 'D'},
	{FlagOverflow, 'O'},
}

// Has reports whether all bits of g are set.
func (f Flag) Has(g Flag) bool { return f&g == g }

// String renders the flags as the catalog does: one letter or '_' per
// condition, separated by single spaces.
func (f Flag) String() string {
	var sb strings.Builder
	for i, fl := range flagLetters {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if f&fl.flag != 0 {
			sb.WriteByte(fl.letter)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Object is one detection. Pixel indices refer to the arena of the list that
// owns the object.
type Object struct {
	ID int

	XMin, XMax, YMin, YMax int
	NPix                   int
	First, Last            int

	// Detection threshold above the background, in convolved units.
	Thresh float64

	Peak, CPeak  float64
	PeakX, PeakY int
	Flux, CFlux  float64
	FluxVar      float64
	Iso          [NIso]int

	MX, MY        float64
	M2X, M2Y, MXY float64
	A, B, Theta   float64
	CXX, CYY, CXY float64

	FWHM  float64
	Flags Flag

	Bkg, BkgSigma float64

	FluxIso, MagIso, MagIsoErr          float64
	FluxIsoCor, MagIsoCor, MagIsoCorErr float64
	FluxAper, MagAper, MagAperErr       float64
	KronRadius                          float64
	FluxAuto, MagAuto, MagAutoErr       float64
	MagBest, MagBestErr                 float64

	Alpha, Delta               float64
	AWorld, BWorld, ThetaWorld float64
	HasWorld                   bool
	StarClass                  float64
	GroupFlux                  float64
}

// Bounds returns the bounding box as a half-open rectangle.
func (o *Object) Bounds() image.Rectangle {
	return image.Rect(o.XMin, o.YMin, o.XMax+1, o.YMax+1)
}

func (o *Object) String() string {
	return fmt.Sprintf("{ID=%d, Center=(%.2f,%.2f), BBox=%v, NPix=%d, Flux=%f, Peak=%f, A=%.2f, B=%.2f, FWHM=%.2f, Flags=%s}",
		o.ID, o.MX, o.MY, o.Bounds(), o.NPix, o.Flux, o.Peak, o.A, o.B, o.FWHM, o.Flags)
}

// ObjectList holds objects and the arena their pixel chains live in.
type ObjectList struct {
	Objects []Object
	Pixels  []Pixel
	NPix    int
	// Absolute convolved level the list was extracted at.
	Thresh float64
}

// Len returns the number of objects.
func (l *ObjectList) Len() int { return len(l.Objects) }

// Chain returns the pixels of object i in chain order.
func (l *ObjectList) Chain(i int) []Pixel {
	o := &l.Objects[i]
	out := make([]Pixel, 0, o.NPix)
	for p := o.First; p != NoPixel; p = l.Pixels[p].Next {
		out = append(out, l.Pixels[p])
	}
	return out
}

// arenaMargin is added on every arena growth.
const arenaMargin = 256

func (l *ObjectList) addPixel(px Pixel, limit int) (int, error) {
	if limit > 0 && len(l.Pixels) >= limit {
		return NoPixel, ErrPixelOverflow
	}
	if len(l.Pixels) == cap(l.Pixels) {
		n := 2*cap(l.Pixels) + arenaMargin
		if limit > 0 && n > limit {
			n = limit
		}
		grown := make([]Pixel, len(l.Pixels), n)
		copy(grown, l.Pixels)
		l.Pixels = grown
	}
	px.Next = NoPixel
	l.Pixels = append(l.Pixels, px)
	l.NPix++
	return len(l.Pixels) - 1, nil
}

func (l *ObjectList) addObject(o Object, limit int) error {
	if limit > 0 && len(l.Objects) >= limit {
		return ErrObjectOverflow
	}
	if len(l.Objects) == cap(l.Objects) {
		n := 2*cap(l.Objects) + 16
		if limit > 0 && n > limit {
			n = limit
		}
		grown := make([]Object, len(l.Objects), n)
		copy(grown, l.Objects)
		l.Objects = grown
	}
	l.Objects = append(l.Objects, o)
	return nil
}

// appendChain copies the chain of src.Objects[idx] into l and returns the
// copied object record. The record is not added to l.Objects.
func (l *ObjectList) appendChain(src *ObjectList, idx, limit int) (Object, error) {
	o := src.Objects[idx]
	o.First, o.Last, o.NPix = NoPixel, NoPixel, 0
	for p := src.Objects[idx].First; p != NoPixel; p = src.Pixels[p].Next {
		if err := l.link(&o, src.Pixels[p], limit); err != nil {
			return Object{}, err
		}
	}
	return o, nil
}

// link appends px to the end of o's chain.
func (l *ObjectList) link(o *Object, px Pixel, limit int) error {
	n, err := l.addPixel(px, limit)
	if err != nil {
		return err
	}
	if o.First == NoPixel {
		o.First = n
	} else {
		l.Pixels[o.Last].Next = n
	}
	o.Last = n
	o.NPix++
	return nil
}
