package extract

import "math"

const (
	fieldEdgeFraction    = 0.25
	minStarsPerZone      = 3
	minTotalStarsForTilt = 20
	starClassCut         = 0.5
)

// ZonePosition identifies a zone in the 3x3 field grid.
type ZonePosition int

const (
	ZoneTopLeft ZonePosition = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
)

// ZoneOrder lists the zones row by row.
var ZoneOrder = []ZonePosition{
	ZoneTopLeft, ZoneTop, ZoneTopRight,
	ZoneLeft, ZoneCenter, ZoneRight,
	ZoneBottomLeft, ZoneBottom, ZoneBottomRight,
}

var zoneLabels = map[ZonePosition]string{
	ZoneTopLeft:     "TL",
	ZoneTop:         "T",
	ZoneTopRight:    "TR",
	ZoneLeft:        "L",
	ZoneCenter:      "Center",
	ZoneRight:       "R",
	ZoneBottomLeft:  "BL",
	ZoneBottom:      "B",
	ZoneBottomRight: "BR",
}

var cornerPositions = []ZonePosition{ZoneTopLeft, ZoneTopRight, ZoneBottomLeft, ZoneBottomRight}

// ZoneData holds per-zone statistics.
type ZoneData struct {
	Label            string
	MedianFWHM       float64
	MedianElongation float64
	StarCount        int
}

// FieldAnalysis holds the FWHM distribution over a 3x3 grid.
type FieldAnalysis struct {
	Zones       map[ZonePosition]ZoneData
	TiltPct     float64
	OffAxisPct  float64
	BestCorner  string
	WorstCorner string
	Reliable    bool
}

// AnalyzeField buckets the point-like objects with a FWHM into a 3x3 grid
// and compares the corners and edges to the center. It returns nil when no
// object qualifies.
func AnalyzeField(objects []*Object, width, height int) *FieldAnalysis {
	const bad = FlagSaturated | FlagTruncated | FlagMerged
	var stars []*Object
	for _, o := range objects {
		if o.FWHM > 0 && o.StarClass >= starClassCut && o.Flags&bad == 0 {
			stars = append(stars, o)
		}
	}
	if len(stars) == 0 {
		return nil
	}

	xLo := float64(width) * fieldEdgeFraction
	xHi := float64(width) * (1.0 - fieldEdgeFraction)
	yLo := float64(height) * fieldEdgeFraction
	yHi := float64(height) * (1.0 - fieldEdgeFraction)

	zoneStars := make(map[ZonePosition][]*Object)
	for _, s := range stars {
		pos := classifyZone(s.MX, s.MY, xLo, xHi, yLo, yHi)
		zoneStars[pos] = append(zoneStars[pos], s)
	}

	zones := make(map[ZonePosition]ZoneData)
	for _, pos := range ZoneOrder {
		zones[pos] = computeZoneData(pos, zoneStars[pos])
	}

	result := &FieldAnalysis{Zones: zones}

	centerFWHM := zones[ZoneCenter].MedianFWHM
	if centerFWHM <= 0 {
		return result
	}

	var bestCorner, worstCorner ZonePosition
	bestFWHM := math.MaxFloat64
	worstFWHM := 0.0
	validCorners := 0
	for _, pos := range cornerPositions {
		z := zones[pos]
		if z.StarCount < minStarsPerZone {
			continue
		}
		validCorners++
		if z.MedianFWHM < bestFWHM {
			bestFWHM = z.MedianFWHM
			bestCorner = pos
		}
		if z.MedianFWHM > worstFWHM {
			worstFWHM = z.MedianFWHM
			worstCorner = pos
		}
	}
	if validCorners >= 2 && worstFWHM > 0 {
		result.TiltPct = (worstFWHM - bestFWHM) / centerFWHM * 100.0
		result.BestCorner = zoneLabels[bestCorner]
		result.WorstCorner = zoneLabels[worstCorner]
	}

	var offAxisSum float64
	offAxisCount := 0
	for _, pos := range ZoneOrder {
		z := zones[pos]
		if pos == ZoneCenter || z.StarCount < minStarsPerZone {
			continue
		}
		offAxisSum += z.MedianFWHM
		offAxisCount++
	}
	if offAxisCount > 0 {
		result.OffAxisPct = (offAxisSum/float64(offAxisCount) - centerFWHM) / centerFWHM * 100.0
	}

	result.Reliable = len(stars) >= minTotalStarsForTilt && validCorners >= 4 && zones[ZoneCenter].StarCount >= minStarsPerZone
	return result
}

func classifyZone(x, y, xLo, xHi, yLo, yHi float64) ZonePosition {
	col, row := 2, 2
	if x < xLo {
		col = 0
	} else if x < xHi {
		col = 1
	}
	if y < yLo {
		row = 0
	} else if y < yHi {
		row = 1
	}
	return ZoneOrder[row*3+col]
}

func computeZoneData(pos ZonePosition, stars []*Object) ZoneData {
	zd := ZoneData{Label: zoneLabels[pos], StarCount: len(stars)}
	if len(stars) == 0 {
		return zd
	}
	fwhm := make([]float64, len(stars))
	elong := make([]float64, 0, len(stars))
	for i, s := range stars {
		fwhm[i] = s.FWHM
		if s.B > 0 {
			elong = append(elong, s.A/s.B)
		}
	}
	zd.MedianFWHM = median(fwhm)
	zd.MedianElongation = median(elong)
	return zd
}
