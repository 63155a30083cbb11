package extract

import (
	"bufio"
	"fmt"
	"io"
)

// Catalog is the result of an extraction. Objects point into Lists, one list
// per detected group, in scan order.
type Catalog struct {
	Objects []*Object
	Lists   []*ObjectList
	Rows    []string

	Background, Sigma float64
	Threshold         float64
	Seeing            float64
}

// FormatRow renders o as one fixed-width catalog line without a newline.
func FormatRow(o *Object) string {
	return fmt.Sprintf("%8d %6.1f %6.1f %5.1f %5.1f %s %s", o.ID, o.MX, o.MY, o.A, o.B, formatMag(o.MagIso), o.Flags)
}

func formatMag(m float64) string { return fmt.Sprintf("%7.3f", m) }

// WriteText writes one row per object.
func (c *Catalog) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, row := range c.Rows {
		if _, err := bw.WriteString(row); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
