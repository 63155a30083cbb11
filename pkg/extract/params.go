package extract

import (
	"fmt"
	"strings"
)

// DetectorType selects how threshold ladders are spaced.
type DetectorType int

const (
	DetectorCCD DetectorType = iota
	DetectorPhotographic
)

func (t DetectorType) String() string {
	switch t {
	case DetectorCCD:
		return "CCD"
	case DetectorPhotographic:
		return "Photographic"
	default:
		return "Unknown"
	}
}

// ParseDetectorType accepts "ccd" or "photo"/"photographic".
func ParseDetectorType(s string) (DetectorType, error) {
	switch strings.ToLower(s) {
	case "", "ccd":
		return DetectorCCD, nil
	case "photo", "photographic":
		return DetectorPhotographic, nil
	}
	return DetectorCCD, fmt.Errorf("unknown detector type %q", s)
}

// ThresholdType selects how DetectThresh is interpreted.
type ThresholdType int

const (
	// ThresholdRelative multiplies DetectThresh by the background sigma.
	ThresholdRelative ThresholdType = iota
	// ThresholdAbsolute uses DetectThresh as ADU above background.
	ThresholdAbsolute
)

// Params contains all parameters for extraction.
type Params struct {
	ThresholdType ThresholdType
	DetectThresh  float64
	MinArea       int

	Deblend            bool
	DeblendNThresh     int
	DeblendMinCont     float64
	DeblendMinArea     int
	DeblendMaxChildren int

	Detector     DetectorType
	Gain         float64
	SatLevel     float64
	MagZeroPoint float64

	LocalBackground bool
	BackThickness   int
	BackClipSigma   float64
	BackMeshSize    int

	ComputeFWHM      bool
	PhotApertureDiam float64
	KronFactor       float64
	KronMinRadius    float64
	SeeingFWHM       float64
	CrowdContrast    float64

	MaxPixels  int
	MaxObjects int

	Workers int
	Seed    uint32
}

// NewParams creates Params with default values.
func NewParams() *Params {
	return &Params{
		ThresholdType:      ThresholdRelative,
		DetectThresh:       1.5,
		MinArea:            5,
		Deblend:            true,
		DeblendNThresh:     32,
		DeblendMinCont:     0.005,
		DeblendMinArea:     3,
		DeblendMaxChildren: 64,
		Detector:           DetectorCCD,
		Gain:               0,
		SatLevel:           50000,
		MagZeroPoint:       25,
		LocalBackground:    true,
		BackThickness:      6,
		BackClipSigma:      3,
		BackMeshSize:       64,
		ComputeFWHM:        true,
		PhotApertureDiam:   10,
		KronFactor:         2.5,
		KronMinRadius:      3.5,
		SeeingFWHM:         0,
		CrowdContrast:      1.1,
		MaxPixels:          4_000_000,
		MaxObjects:         100_000,
		Workers:            4,
		Seed:               1,
	}
}

// Validate reports the first inconsistent parameter.
func (p *Params) Validate() error {
	if p.DetectThresh <= 0 {
		return fmt.Errorf("detection threshold must be positive, got %f", p.DetectThresh)
	}
	if p.MinArea < 1 {
		return fmt.Errorf("minimum area must be at least 1, got %d", p.MinArea)
	}
	if p.Deblend {
		if p.DeblendNThresh < 2 {
			return fmt.Errorf("deblend levels must be at least 2, got %d", p.DeblendNThresh)
		}
		if p.DeblendMinCont < 0 || p.DeblendMinCont > 1 {
			return fmt.Errorf("deblend contrast must be in [0, 1], got %f", p.DeblendMinCont)
		}
		if p.DeblendMinArea < 1 {
			return fmt.Errorf("deblend minimum area must be at least 1, got %d", p.DeblendMinArea)
		}
		if p.DeblendMaxChildren < 1 {
			return fmt.Errorf("deblend child capacity must be positive, got %d", p.DeblendMaxChildren)
		}
	}
	if p.Gain < 0 {
		return fmt.Errorf("gain must not be negative, got %f", p.Gain)
	}
	if p.LocalBackground && p.BackThickness < 1 {
		return fmt.Errorf("background annulus thickness must be positive, got %d", p.BackThickness)
	}
	if p.BackClipSigma <= 0 {
		return fmt.Errorf("background clip sigma must be positive, got %f", p.BackClipSigma)
	}
	if p.KronFactor <= 0 {
		return fmt.Errorf("Kron factor must be positive, got %f", p.KronFactor)
	}
	if p.PhotApertureDiam < 0 {
		return fmt.Errorf("aperture diameter must not be negative, got %f", p.PhotApertureDiam)
	}
	if p.MaxPixels < 0 || p.MaxObjects < 0 {
		return fmt.Errorf("capacities must not be negative")
	}
	return nil
}
