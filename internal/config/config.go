package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"starextract/pkg/extract"
)

const (
	defaultFilterSize        = 5
	defaultHotpixelThreshold = 500
	defaultOverlayWidth      = 1200
)

// Config holds the run configuration. Zero values mean "use the default".
type Config struct {
	// Detection
	Threshold     float64 `json:"threshold"`
	AbsoluteLevel bool    `json:"absolute_threshold"`
	MinArea       int     `json:"min_area"`
	FilterSize    int     `json:"filter_size"`
	Detector      string  `json:"detector"`

	// Deblending
	Deblend        *bool   `json:"deblend"`
	DeblendNThresh int     `json:"deblend_nthresh"`
	DeblendMinCont float64 `json:"deblend_mincont"`

	// Photometry
	Gain           float64 `json:"gain"`
	SatLevel       float64 `json:"saturation_level"`
	MagZeroPoint   float64 `json:"mag_zeropoint"`
	ApertureDiam   float64 `json:"aperture_diameter"`
	SeeingFWHM     float64 `json:"seeing_fwhm"`
	GlobalBackOnly bool    `json:"global_background"`
	BackMeshSize   int     `json:"back_mesh_size"`

	// Preparation
	HotpixelThreshold float64 `json:"hotpixel_threshold"`
	NoHotpixelFilter  bool    `json:"no_hotpixel_filter"`
	Debayer           bool    `json:"debayer"`
	DebugDir          string  `json:"debug_dir"`

	// Outputs
	Catalog      string `json:"catalog"`
	Overlay      string `json:"overlay"`
	OverlayWidth int    `json:"overlay_width"`
	FieldOverlay string `json:"field_overlay"`

	Workers int    `json:"workers"`
	Seed    uint32 `json:"seed"`
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	Threshold  float64
	MinArea    int
	FilterSize int
	NoDeblend  bool
	Catalog    string
	Overlay    string
	Workers    int
}

// Load reads a JSON config file. Fields not set in the file keep their zero
// values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve applies flags over the file settings and fills in defaults. Gain
// and SatLevel stay zero when unset so a FITS header can supply them.
func (c *Config) Resolve(flags Flags) {
	if flags.Threshold > 0 {
		c.Threshold = flags.Threshold
	}
	if flags.MinArea > 0 {
		c.MinArea = flags.MinArea
	}
	if flags.FilterSize > 0 {
		c.FilterSize = flags.FilterSize
	}
	if flags.NoDeblend {
		off := false
		c.Deblend = &off
	}
	if flags.Catalog != "" {
		c.Catalog = flags.Catalog
	}
	if flags.Overlay != "" {
		c.Overlay = flags.Overlay
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}

	def := extract.NewParams()
	if c.Threshold <= 0 {
		c.Threshold = def.DetectThresh
	}
	if c.MinArea <= 0 {
		c.MinArea = def.MinArea
	}
	if c.FilterSize <= 0 {
		c.FilterSize = defaultFilterSize
	}
	if c.Deblend == nil {
		on := def.Deblend
		c.Deblend = &on
	}
	if c.DeblendNThresh <= 0 {
		c.DeblendNThresh = def.DeblendNThresh
	}
	if c.DeblendMinCont <= 0 {
		c.DeblendMinCont = def.DeblendMinCont
	}
	if c.MagZeroPoint == 0 {
		c.MagZeroPoint = def.MagZeroPoint
	}
	if c.ApertureDiam <= 0 {
		c.ApertureDiam = def.PhotApertureDiam
	}
	if c.BackMeshSize <= 0 {
		c.BackMeshSize = def.BackMeshSize
	}
	if c.HotpixelThreshold <= 0 {
		c.HotpixelThreshold = defaultHotpixelThreshold
	}
	if c.OverlayWidth <= 0 {
		c.OverlayWidth = defaultOverlayWidth
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Seed == 0 {
		c.Seed = def.Seed
	}
}

// Params builds extraction parameters from a resolved Config.
func (c *Config) Params() (*extract.Params, error) {
	p := extract.NewParams()
	det, err := extract.ParseDetectorType(c.Detector)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p.Detector = det
	p.DetectThresh = c.Threshold
	if c.AbsoluteLevel {
		p.ThresholdType = extract.ThresholdAbsolute
	}
	p.MinArea = c.MinArea
	if c.Deblend != nil {
		p.Deblend = *c.Deblend
	}
	p.DeblendNThresh = c.DeblendNThresh
	p.DeblendMinCont = c.DeblendMinCont
	p.Gain = c.Gain
	if c.SatLevel > 0 {
		p.SatLevel = c.SatLevel
	}
	p.MagZeroPoint = c.MagZeroPoint
	p.PhotApertureDiam = c.ApertureDiam
	p.SeeingFWHM = c.SeeingFWHM
	p.LocalBackground = !c.GlobalBackOnly
	p.BackMeshSize = c.BackMeshSize
	p.Workers = c.Workers
	p.Seed = c.Seed
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return p, nil
}
