package fits

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// buildFITS assembles a primary HDU from header cards and big-endian pixel
// data, padding both to whole blocks.
func buildFITS(cards []string, data []byte) []byte {
	var buf bytes.Buffer
	for _, c := range append(cards, "END") {
		buf.WriteString(fmt.Sprintf("%-80s", c))
	}
	for buf.Len()%blockSize != 0 {
		buf.WriteByte(' ')
	}
	buf.Write(data)
	for buf.Len()%blockSize != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func card(key, value string) string {
	return fmt.Sprintf("%-8s= %20s / comment", key, value)
}

func TestRead16Bit(t *testing.T) {
	values := []int{0, 1, 1000, 65535, 32768, 12345}
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], uint16(int16(v-32768)))
	}
	raw := buildFITS([]string{
		card("SIMPLE", "T"),
		card("BITPIX", "16"),
		card("NAXIS", "2"),
		card("NAXIS1", "3"),
		card("NAXIS2", "2"),
		card("BZERO", "32768"),
		card("BSCALE", "1"),
		card("GAIN", "1.5"),
		"OBJECT  = 'M 31    '           / target",
		"DATE-OBS= '2024-03-01T21:15:30.5'",
		"COMMENT this card has no value",
	}, data)

	img, err := ReadBytes(raw)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if img.Width != 3 || img.Height != 2 || img.BitPix != 16 {
		t.Fatalf("geometry: got %dx%d BITPIX %d", img.Width, img.Height, img.BitPix)
	}
	for i, v := range values {
		if img.Pixels[i] != float32(v) {
			t.Errorf("pixel %d: got %f, want %d", i, img.Pixels[i], v)
		}
	}
	if g, ok := img.Header.Gain(); !ok || g != 1.5 {
		t.Errorf("Gain: got %f, %v", g, ok)
	}
	if name := img.Header.ObjectName(); name != "M 31" {
		t.Errorf("ObjectName: got %q", name)
	}
	want := time.Date(2024, 3, 1, 21, 15, 30, 500_000_000, time.UTC)
	if d, ok := img.Header.DateObs(); !ok || !d.Equal(want) {
		t.Errorf("DateObs: got %v, %v", d, ok)
	}
}

func TestReadFloat(t *testing.T) {
	values := []float32{-1.5, 0, 3.25, 1e6}
	data32 := make([]byte, 4*len(values))
	data64 := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(data32[4*i:], math.Float32bits(v))
		binary.BigEndian.PutUint64(data64[8*i:], math.Float64bits(float64(v)))
	}
	tests := []struct {
		name   string
		bitpix string
		data   []byte
	}{
		{"single", "-32", data32},
		{"double", "-64", data64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := buildFITS([]string{
				card("SIMPLE", "T"),
				card("BITPIX", tt.bitpix),
				card("NAXIS", "2"),
				card("NAXIS1", "2"),
				card("NAXIS2", "2"),
				card("BSCALE", "2.0D0"),
			}, tt.data)
			img, err := Read(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			for i, v := range values {
				if img.Pixels[i] != 2*v {
					t.Errorf("pixel %d: got %f, want %f", i, img.Pixels[i], 2*v)
				}
			}
		})
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"truncated header", []byte(strings.Repeat(" ", 100))},
		{"one axis", buildFITS([]string{card("BITPIX", "16"), card("NAXIS", "1"), card("NAXIS1", "4")}, nil)},
		{"bad bitpix", buildFITS([]string{card("BITPIX", "12"), card("NAXIS", "2"), card("NAXIS1", "2"), card("NAXIS2", "2")}, make([]byte, 8))},
		{"short data", buildFITS([]string{card("BITPIX", "16"), card("NAXIS", "2"), card("NAXIS1", "2000"), card("NAXIS2", "2000")}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadBytes(tt.raw); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestReadHeaderFile(t *testing.T) {
	raw := buildFITS([]string{
		card("BITPIX", "8"),
		card("NAXIS", "2"),
		card("NAXIS1", "4"),
		card("NAXIS2", "1"),
		card("SATURATE", "250"),
		card("EXPTIME", "1.2E+2"),
	}, []byte{1, 2, 3, 4})
	path := filepath.Join(t.TempDir(), "frame.fits")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	hdr, err := ReadHeaderFile(path)
	if err != nil {
		t.Fatalf("ReadHeaderFile failed: %v", err)
	}
	if hdr.Pixels != nil {
		t.Errorf("header read returned pixels")
	}
	if sat, ok := hdr.Header.SaturationLevel(); !ok || sat != 250 {
		t.Errorf("SaturationLevel: got %f, %v", sat, ok)
	}
	if exp, ok := hdr.Header.ExposureTime(); !ok || exp != 120 {
		t.Errorf("ExposureTime: got %f, %v", exp, ok)
	}

	img, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if img.Pixels[i] != want {
			t.Errorf("pixel %d: got %f, want %f", i, img.Pixels[i], want)
		}
	}
}

func TestCardValue(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"                  42 / answer", "42"},
		{"'O''Brien'  / quoted", "'O''Brien'"},
		{"'a/b'  / slash inside quotes", "'a/b'"},
		{"T", "T"},
	}
	for _, tt := range tests {
		if got := cardValue(tt.field); got != tt.want {
			t.Errorf("cardValue(%q): got %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestHeaderValues(t *testing.T) {
	h := NewHeader()
	h.Values["EGAIN"] = "0.8"
	h.Values["GAIN"] = "2"
	h.Values["XBINNING"] = "2"
	h.Values["FILTER"] = "Ha"
	h.Values["BAD"] = "abc"

	if g, _ := h.Gain(); g != 0.8 {
		t.Errorf("Gain prefers EGAIN: got %f", g)
	}
	if v, ok := h.GetInt("xbinning"); !ok || v != 2 {
		t.Errorf("GetInt: got %d, %v", v, ok)
	}
	if h.Filter() != "Ha" {
		t.Errorf("Filter: got %q", h.Filter())
	}
	if _, ok := h.GetDouble("BAD"); ok {
		t.Errorf("GetDouble accepted %q", h.Values["BAD"])
	}
	if _, ok := h.GetDouble("MISSING"); ok {
		t.Errorf("GetDouble found a missing key")
	}
	if parseValue("'It''s'") != "It's" {
		t.Errorf("parseValue: got %q", parseValue("'It''s'"))
	}
}
