// Package fits reads the primary HDU of FITS images into physical float32
// values.
package fits

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	cardSize      = 80
	cardsPerBlock = 36
	blockSize     = cardSize * cardsPerBlock
)

// Image is the primary array of a FITS file with BZERO/BSCALE applied. For
// cubes only the first plane is read.
type Image struct {
	Width  int
	Height int
	BitPix int
	Pixels []float32
	Header *Header
}

// ReadFile reads headers and pixel data from a file.
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// ReadHeaderFile reads only the headers of a file.
func ReadHeaderFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return read(f, true)
}

// ReadBytes reads headers and pixel data from a byte slice.
func ReadBytes(data []byte) (*Image, error) {
	return Read(bytes.NewReader(data))
}

// Read reads headers and pixel data from r.
func Read(r io.Reader) (*Image, error) {
	return read(r, false)
}

func read(r io.Reader, skipPixels bool) (*Image, error) {
	var bitpix, naxis, width, height int
	bzero, bscale := 0.0, 1.0
	hdr := NewHeader()

	card := make([]byte, cardSize)
	for done := false; !done; {
		for i := 0; i < cardsPerBlock; i++ {
			if _, err := io.ReadFull(r, card); err != nil {
				return nil, fmt.Errorf("reading FITS header record: %w", err)
			}
			keyword := strings.TrimSpace(string(card[:8]))
			if keyword == "END" {
				done = true
				if rest := cardsPerBlock - 1 - i; rest > 0 {
					if _, err := io.CopyN(io.Discard, r, int64(rest*cardSize)); err != nil {
						return nil, fmt.Errorf("skipping header padding: %w", err)
					}
				}
				break
			}
			if card[8] != '=' || card[9] != ' ' || keyword == "" {
				continue
			}
			raw := cardValue(string(card[10:]))
			if v := parseValue(raw); v != "" {
				hdr.Values[strings.ToUpper(keyword)] = v
			}

			switch keyword {
			case "BITPIX":
				bitpix, _ = strconv.Atoi(raw)
			case "NAXIS":
				naxis, _ = strconv.Atoi(raw)
			case "NAXIS1":
				width, _ = strconv.Atoi(raw)
			case "NAXIS2":
				height, _ = strconv.Atoi(raw)
			case "BZERO":
				if v, ok := hdr.GetDouble("BZERO"); ok {
					bzero = v
				}
			case "BSCALE":
				if v, ok := hdr.GetDouble("BSCALE"); ok {
					bscale = v
				}
			}
		}
	}

	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", naxis, width, height)
	}
	img := &Image{Width: width, Height: height, BitPix: bitpix, Header: hdr}
	if skipPixels {
		return img, nil
	}

	n := width * height
	bpp := intAbs(bitpix) / 8
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}
	data := make([]byte, n*bpp)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d-bit pixel data: %w", bitpix, err)
	}

	img.Pixels = make([]float32, n)
	for i := 0; i < n; i++ {
		b := data[i*bpp:]
		var v float64
		switch bitpix {
		case 8:
			v = float64(b[0])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(b)))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(b)))
		case 64:
			v = float64(int64(binary.BigEndian.Uint64(b)))
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		case -64:
			v = math.Float64frombits(binary.BigEndian.Uint64(b))
		}
		img.Pixels[i] = float32(v*bscale + bzero)
	}
	return img, nil
}

// cardValue strips the comment from the value field of a card, leaving
// quoted strings intact.
func cardValue(field string) string {
	s := strings.TrimSpace(field)
	if strings.HasPrefix(s, "'") {
		for i := 1; i < len(s); i++ {
			if s[i] != '\'' {
				continue
			}
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return s[:i+1]
		}
		return s
	}
	return strings.TrimSpace(strings.SplitN(s, "/", 2)[0])
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
