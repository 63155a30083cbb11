package extract

import (
	"fmt"
	"log"
)

// Engine carries the state shared by every stage of one extraction: the
// frame, parameters, background level and collaborators. An Engine is safe
// for concurrent Scan, Deblend and Measure calls once configured.
type Engine struct {
	Frame  *Frame
	Params *Params

	// Global background level and its standard deviation, in raw units.
	Background float64
	Sigma      float64

	Astrometry Astrometry
	Hook       ObjectHook
	Logger     *log.Logger
}

// NewEngine validates p and estimates the global background of frame.
func NewEngine(frame *Frame, p *Params) (*Engine, error) {
	if frame == nil {
		return nil, fmt.Errorf("nil frame")
	}
	if p == nil {
		p = NewParams()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	bkg := EstimateBackground(frame, p.BackMeshSize, p.BackClipSigma)
	return &Engine{
		Frame:      frame,
		Params:     p,
		Background: bkg.Mean,
		Sigma:      bkg.StdDev,
	}, nil
}

// Threshold returns the detection threshold above the background.
func (e *Engine) Threshold() float64 {
	if e.Params.ThresholdType == ThresholdAbsolute {
		return e.Params.DetectThresh
	}
	return e.Params.DetectThresh * e.Sigma
}

// DetectionLevel returns the absolute convolved level objects are extracted at.
func (e *Engine) DetectionLevel() float64 {
	return e.Background + e.Threshold()
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}
