package main

import (
	"testing"

	"starextract/internal/config"
	"starextract/pkg/fits"
)

func TestApplyHeader(t *testing.T) {
	hdr := fits.NewHeader()
	hdr.Values["GAIN"] = "1.5"
	hdr.Values["SATURATE"] = "40000"

	tests := []struct {
		name     string
		cfg      config.Config
		wantGain float64
		wantSat  float64
	}{
		{"header fills unset values", config.Config{}, 1.5, 40000},
		{"configured gain wins", config.Config{Gain: 3}, 3, 40000},
		{"configured saturation wins", config.Config{SatLevel: 60000}, 1.5, 60000},
		{"both configured", config.Config{Gain: 3, SatLevel: 60000}, 3, 60000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Resolve(config.Flags{})
			p, err := cfg.Params()
			if err != nil {
				t.Fatalf("Params failed: %v", err)
			}
			applyHeader(p, hdr, &cfg)
			if p.Gain != tt.wantGain {
				t.Errorf("Gain: got %f, want %f", p.Gain, tt.wantGain)
			}
			if p.SatLevel != tt.wantSat {
				t.Errorf("SatLevel: got %f, want %f", p.SatLevel, tt.wantSat)
			}
		})
	}
}

func TestMedianMAD(t *testing.T) {
	med, mad := medianMAD([]float64{1, 2, 3, 4, 100})
	if med != 3 {
		t.Errorf("median: got %f, want 3", med)
	}
	if want := 1.4826; mad != want {
		t.Errorf("MAD: got %f, want %f", mad, want)
	}
}
