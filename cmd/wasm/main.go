//go:build js && wasm

package main

import (
	"context"
	"sort"
	"syscall/js"

	"starextract/pkg/extract"
	"starextract/pkg/fits"
	"starextract/pkg/imageops"
)

var (
	lastFrame   *extract.Frame
	lastCatalog *extract.Catalog
	lastMarkers []extract.Marker
	lastField   *extract.FieldAnalysis
)

func main() {
	js.Global().Set("analyzeFITS", js.FuncOf(analyzeFITS))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	js.Global().Set("renderFieldOverlay", js.FuncOf(renderFieldOverlay))
	select {} // block forever
}

// analyzeFITS(fileBytes, thresh, options) extracts the frame and returns the
// catalog. options may set debayer, minArea, deblend and filterSize.
func analyzeFITS(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("usage: analyzeFITS(fileBytes, thresh, options)")
	}

	jsBytes := args[0]
	fileBytes := make([]byte, jsBytes.Get("length").Int())
	js.CopyBytesToGo(fileBytes, jsBytes)

	params := extract.NewParams()
	params.DetectThresh = args[1].Float()
	params.Workers = 1
	prep := imageops.NewPrepareParams()
	debayer := false
	if len(args) >= 3 && args[2].Type() == js.TypeObject {
		opts := args[2]
		if v := opts.Get("debayer"); v.Type() == js.TypeBoolean {
			debayer = v.Bool()
		}
		if v := opts.Get("deblend"); v.Type() == js.TypeBoolean {
			params.Deblend = v.Bool()
		}
		if v := opts.Get("minArea"); v.Type() == js.TypeNumber {
			params.MinArea = v.Int()
		}
		if v := opts.Get("filterSize"); v.Type() == js.TypeNumber {
			prep.FilterSize = v.Int()
		}
	}

	img, err := fits.ReadBytes(fileBytes)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	var src imageops.Mat
	if debayer {
		src, err = imageops.DebayerToMat(img.Pixels, img.Width, img.Height)
	} else {
		src, err = imageops.FromFloat32(img.Pixels, img.Width, img.Height)
	}
	if err != nil {
		return errorResult(err.Error())
	}
	defer src.Close()

	prepared, err := imageops.Prepare(src, prep)
	if err != nil {
		return errorResult("Preparation error: " + err.Error())
	}
	if g, ok := img.Header.Gain(); ok && g > 0 {
		params.Gain = g
	}
	if sat, ok := img.Header.SaturationLevel(); ok && sat > 0 {
		params.SatLevel = sat
	}

	frame, err := extract.NewFrame(prepared.Width, prepared.Height, prepared.Raw, prepared.Conv)
	if err != nil {
		return errorResult(err.Error())
	}
	engine, err := extract.NewEngine(frame, params)
	if err != nil {
		return errorResult(err.Error())
	}
	if wcs, err := extract.LinearFromHeader(img.Header); err == nil {
		engine.Astrometry = wcs
	}
	markers := &extract.MarkerLayer{}
	engine.Hook = markers

	cat, err := engine.Extract(context.Background(), frame.Bounds())
	if err != nil && cat == nil {
		return errorResult("Extraction error: " + err.Error())
	}
	lastFrame, lastCatalog, lastMarkers = frame, cat, markers.Markers()
	lastField = extract.AnalyzeField(cat.Objects, frame.Width, frame.Height)

	fwhm := make([]float64, 0, len(cat.Objects))
	jsObjects := make([]interface{}, len(cat.Objects))
	for i, o := range cat.Objects {
		if o.FWHM > 0 {
			fwhm = append(fwhm, o.FWHM)
		}
		obj := map[string]interface{}{
			"id":        o.ID,
			"x":         o.MX,
			"y":         o.MY,
			"a":         o.A,
			"b":         o.B,
			"theta":     o.Theta,
			"npix":      o.NPix,
			"flux":      o.Flux,
			"peak":      o.Peak,
			"fwhm":      o.FWHM,
			"magIso":    o.MagIso,
			"magAuto":   o.MagAuto,
			"magBest":   o.MagBest,
			"starClass": o.StarClass,
			"flags":     o.Flags.String(),
		}
		if o.HasWorld {
			obj["alpha"] = o.Alpha
			obj["delta"] = o.Delta
		}
		jsObjects[i] = obj
	}

	jsResult := map[string]interface{}{
		"width":      frame.Width,
		"height":     frame.Height,
		"background": cat.Background,
		"stddev":     cat.Sigma,
		"threshold":  cat.Threshold,
		"seeing":     cat.Seeing,
		"medianFWHM": medianF64(fwhm),
		"objects":    jsObjects,
		"rows":       stringsToJS(cat.Rows),
	}
	if lastField != nil {
		jsZones := make([]interface{}, len(extract.ZoneOrder))
		for i, pos := range extract.ZoneOrder {
			z := lastField.Zones[pos]
			jsZones[i] = map[string]interface{}{
				"label":            z.Label,
				"medianFWHM":       z.MedianFWHM,
				"medianElongation": z.MedianElongation,
				"starCount":        z.StarCount,
			}
		}
		jsResult["field"] = map[string]interface{}{
			"zones":       jsZones,
			"tiltPct":     lastField.TiltPct,
			"offAxisPct":  lastField.OffAxisPct,
			"bestCorner":  lastField.BestCorner,
			"worstCorner": lastField.WorstCorner,
			"reliable":    lastField.Reliable,
		}
	}
	return js.ValueOf(jsResult)
}

// renderOverlay(width) returns the last frame with its markers as JPEG bytes.
func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastFrame == nil {
		return js.Null()
	}
	width := 1200
	if len(args) > 0 && args[0].Type() == js.TypeNumber {
		width = args[0].Int()
	}
	img := extract.RenderOverlay(lastFrame, lastMarkers, lastCatalog.Background, lastCatalog.Sigma, width)
	data, err := extract.EncodeImageBytes(img, "jpeg")
	if err != nil {
		return js.Null()
	}
	return bytesToJS(data)
}

func renderFieldOverlay(this js.Value, args []js.Value) interface{} {
	if lastField == nil {
		return js.Null()
	}
	img, err := extract.RenderFieldOverlay(lastField, lastFrame.Width, lastFrame.Height)
	if err != nil {
		return js.Null()
	}
	data, err := extract.EncodeImageBytes(img, "jpeg")
	if err != nil {
		return js.Null()
	}
	return bytesToJS(data)
}

func bytesToJS(data []byte) js.Value {
	uint8Array := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(uint8Array, data)
	return uint8Array
}

func stringsToJS(rows []string) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}

func medianF64(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
