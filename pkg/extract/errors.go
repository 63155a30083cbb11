package extract

import "errors"

var (
	// ErrNoObjects is returned when a scan finds nothing above threshold.
	ErrNoObjects = errors.New("no objects detected")

	ErrPixelOverflow   = errors.New("pixel arena capacity exceeded")
	ErrObjectOverflow  = errors.New("object capacity exceeded")
	ErrDeblendOverflow = errors.New("deblend child capacity exceeded")
)

// FatalError aborts the operation that produced it. No partial result
// accompanies a FatalError.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
