package extract

import "sync"

// ObjectHook receives every finished object with its formatted isophotal
// magnitude.
type ObjectHook interface {
	ObjectDone(o *Object, magIso string)
}

// ObjectHookFunc adapts a function to ObjectHook.
type ObjectHookFunc func(o *Object, magIso string)

func (f ObjectHookFunc) ObjectDone(o *Object, magIso string) { f(o, magIso) }

// Marker is an ellipse to draw over a detection.
type Marker struct {
	ID        int
	X, Y      float64
	A, B      float64
	Theta     float64
	StarClass float64
	Flags     Flag
	Label     string
}

// MarkerLayer collects one marker per finished object. Ellipses are drawn at
// Scale times the object's semi-axes.
type MarkerLayer struct {
	Scale float64

	mu      sync.Mutex
	markers []Marker
}

func (l *MarkerLayer) ObjectDone(o *Object, magIso string) {
	s := l.Scale
	if s <= 0 {
		s = 3
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = append(l.markers, Marker{
		ID:        o.ID,
		X:         o.MX,
		Y:         o.MY,
		A:         s * o.A,
		B:         s * o.B,
		Theta:     o.Theta,
		StarClass: o.StarClass,
		Flags:     o.Flags,
		Label:     magIso,
	})
}

// Markers returns a copy of the collected markers.
func (l *MarkerLayer) Markers() []Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Marker(nil), l.markers...)
}
