package fits

import (
	"strconv"
	"strings"
	"time"
)

// Header holds parsed primary header key-value pairs. Keys are upper case.
type Header struct {
	Values map[string]string
}

// NewHeader creates an empty Header.
func NewHeader() *Header {
	return &Header{Values: make(map[string]string)}
}

func (h *Header) GetString(key string) string {
	return h.Values[strings.ToUpper(key)]
}

func (h *Header) GetDouble(key string) (float64, bool) {
	v, ok := h.Values[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	// Fortran-style exponents appear in older files.
	v = strings.Replace(strings.TrimSpace(v), "D", "E", 1)
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (h *Header) GetInt(key string) (int, bool) {
	v, ok := h.Values[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// GetDateTime parses ISO-8601 dates as written in FITS headers, in UTC
// unless the value carries a zone.
func (h *Header) GetDateTime(key string) (time.Time, bool) {
	v, ok := h.Values[strings.ToUpper(key)]
	if !ok {
		return time.Time{}, false
	}
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (h *Header) ObjectName() string    { return h.GetString("OBJECT") }
func (h *Header) Filter() string        { return h.GetString("FILTER") }
func (h *Header) CameraName() string    { return h.GetString("INSTRUME") }
func (h *Header) TelescopeName() string { return h.GetString("TELESCOP") }

func (h *Header) ExposureTime() (float64, bool) {
	if v, ok := h.GetDouble("EXPTIME"); ok {
		return v, true
	}
	return h.GetDouble("EXPOSURE")
}

func (h *Header) DateObs() (time.Time, bool) { return h.GetDateTime("DATE-OBS") }

// Gain returns the detector gain in e-/ADU.
func (h *Header) Gain() (float64, bool) {
	if v, ok := h.GetDouble("EGAIN"); ok {
		return v, true
	}
	return h.GetDouble("GAIN")
}

// SaturationLevel returns the level at which pixels saturate, in ADU.
func (h *Header) SaturationLevel() (float64, bool) {
	if v, ok := h.GetDouble("SATURATE"); ok {
		return v, true
	}
	return h.GetDouble("DATAMAX")
}

func parseValue(raw string) string {
	if raw == "" {
		return ""
	}
	switch raw {
	case "T":
		return "True"
	case "F":
		return "False"
	}
	if strings.HasPrefix(raw, "'") {
		end := strings.LastIndex(raw, "'")
		if end > 0 {
			return strings.ReplaceAll(strings.TrimRight(raw[1:end], " "), "''", "'")
		}
		return strings.TrimLeft(strings.TrimRight(raw, " "), "'")
	}
	return raw
}
