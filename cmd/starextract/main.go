package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"starextract/internal/config"
	"starextract/pkg/extract"
	"starextract/pkg/fits"
	"starextract/pkg/imageops"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("starextract", flag.ContinueOnError)
	configPath := fs.String("config", "", "JSON configuration file")
	verbose := fs.Bool("v", false, "log progress to stderr")
	var flags config.Flags
	fs.Float64Var(&flags.Threshold, "thresh", 0, "detection threshold in background sigmas")
	fs.IntVar(&flags.MinArea, "minarea", 0, "minimum object area in pixels")
	fs.IntVar(&flags.FilterSize, "filter", 0, "odd Gaussian filter size for detection")
	fs.BoolVar(&flags.NoDeblend, "nodeblend", false, "disable deblending")
	fs.StringVar(&flags.Catalog, "catalog", "", "catalog output path (default stdout)")
	fs.StringVar(&flags.Overlay, "overlay", "", "marker overlay image path (.jpg, .png or .webp)")
	fs.IntVar(&flags.Workers, "workers", 0, "parallel deblend/measure workers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: starextract [flags] <input-file>")
	}
	inputFilePath := fs.Arg(0)

	var cfg config.Config
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	cfg.Resolve(flags)

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "starextract: ", log.Ldate|log.Ltime)
	}

	startTime := time.Now()
	src, hdr, err := loadImage(inputFilePath, cfg.Debayer)
	if err != nil {
		return err
	}
	defer src.Close()
	logger.Printf("loaded %s: %dx%d (%s backend)", inputFilePath, src.Cols(), src.Rows(), imageops.Backend)

	prep := imageops.NewPrepareParams()
	prep.HotpixelFiltering = !cfg.NoHotpixelFilter
	prep.HotpixelThreshold = cfg.HotpixelThreshold
	prep.FilterSize = cfg.FilterSize
	prep.SaveIntermediateFilesPath = cfg.DebugDir
	prepared, err := imageops.Prepare(src, prep)
	if err != nil {
		return fmt.Errorf("preparing frame: %w", err)
	}
	logger.Printf("hot pixels replaced: %d", prepared.HotpixelCount)

	params, err := cfg.Params()
	if err != nil {
		return err
	}
	if hdr != nil {
		applyHeader(params, hdr, &cfg)
	}

	frame, err := extract.NewFrame(prepared.Width, prepared.Height, prepared.Raw, prepared.Conv)
	if err != nil {
		return err
	}
	engine, err := extract.NewEngine(frame, params)
	if err != nil {
		return err
	}
	engine.Logger = logger
	if hdr != nil {
		if wcs, err := extract.LinearFromHeader(hdr); err == nil {
			engine.Astrometry = wcs
		} else {
			logger.Printf("no astrometry: %v", err)
		}
	}
	markers := &extract.MarkerLayer{}
	engine.Hook = markers

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cat, err := engine.Extract(ctx, frame.Bounds())
	if err != nil && !errors.Is(err, extract.ErrNoObjects) {
		return fmt.Errorf("extracting: %w", err)
	}
	elapsed := time.Since(startTime)

	if err := writeCatalog(cat, cfg.Catalog); err != nil {
		return err
	}
	printSummary(os.Stderr, cat, frame, elapsed)

	if cfg.Overlay != "" {
		img := extract.RenderOverlay(frame, markers.Markers(), cat.Background, cat.Sigma, cfg.OverlayWidth)
		if err := extract.SaveImage(cfg.Overlay, img); err != nil {
			return fmt.Errorf("writing overlay: %w", err)
		}
	}

	field := extract.AnalyzeField(cat.Objects, frame.Width, frame.Height)
	if field != nil {
		printField(os.Stderr, field)
		if cfg.FieldOverlay != "" {
			img, err := extract.RenderFieldOverlay(field, frame.Width, frame.Height)
			if err != nil {
				return err
			}
			if err := extract.SaveImage(cfg.FieldOverlay, img); err != nil {
				return fmt.Errorf("writing field overlay: %w", err)
			}
		}
	}
	return nil
}

func loadImage(path string, debayer bool) (imageops.Mat, *fits.Header, error) {
	lowerPath := strings.ToLower(path)
	if !strings.HasSuffix(lowerPath, ".fits") && !strings.HasSuffix(lowerPath, ".fit") && !strings.HasSuffix(lowerPath, ".fts") {
		m, err := loadNonFitsImage(path)
		return m, nil, err
	}
	img, err := fits.ReadFile(path)
	if err != nil {
		return imageops.Mat{}, nil, fmt.Errorf("reading FITS: %w", err)
	}
	var m imageops.Mat
	if debayer || img.Header.GetString("BAYERPAT") == "RGGB" {
		m, err = imageops.DebayerToMat(img.Pixels, img.Width, img.Height)
	} else {
		m, err = imageops.FromFloat32(img.Pixels, img.Width, img.Height)
	}
	return m, img.Header, err
}

// applyHeader takes gain and saturation from the header when the
// configuration leaves them unset.
func applyHeader(p *extract.Params, hdr *fits.Header, cfg *config.Config) {
	if cfg.Gain <= 0 {
		if g, ok := hdr.Gain(); ok && g > 0 {
			p.Gain = g
		}
	}
	if cfg.SatLevel <= 0 {
		if sat, ok := hdr.SaturationLevel(); ok && sat > 0 {
			p.SatLevel = sat
		}
	}
}

func writeCatalog(cat *extract.Catalog, path string) error {
	if path == "" {
		return cat.WriteText(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating catalog: %w", err)
	}
	if err := cat.WriteText(f); err != nil {
		f.Close()
		return fmt.Errorf("writing catalog: %w", err)
	}
	return f.Close()
}

func printSummary(w io.Writer, cat *extract.Catalog, frame *extract.Frame, elapsed time.Duration) {
	var fwhm []float64
	stars := 0
	for _, o := range cat.Objects {
		if o.FWHM > 0 {
			fwhm = append(fwhm, o.FWHM)
		}
		if o.StarClass >= 0.5 {
			stars++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== Extraction Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Fprintf(w, "  Image size:      %d x %d\n", frame.Width, frame.Height)
	fmt.Fprintf(w, "  Background:      %.2f +/- %.2f ADU\n", cat.Background, cat.Sigma)
	fmt.Fprintf(w, "  Threshold:       %.2f ADU\n", cat.Threshold)
	fmt.Fprintf(w, "  Objects:         %d (%d point-like)\n", len(cat.Objects), stars)
	if len(fwhm) > 0 {
		med, mad := medianMAD(fwhm)
		fmt.Fprintf(w, "  FWHM (median):   %.3f +/- %.3f px\n", med, mad)
	}
	if cat.Seeing > 0 {
		fmt.Fprintf(w, "  Seeing:          %.3f px\n", cat.Seeing)
	}
	fmt.Fprintln(w, "==============================")
}

func printField(w io.Writer, field *extract.FieldAnalysis) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Field Analysis (3x3) ===")
	for i, pos := range extract.ZoneOrder {
		z := field.Zones[pos]
		fmt.Fprintf(w, "  %-8s FWHM=%.3f  elong=%.2f  n=%d\n", z.Label, z.MedianFWHM, z.MedianElongation, z.StarCount)
		if (i+1)%3 == 0 && i < 8 {
			fmt.Fprintln(w, "  ---")
		}
	}
	fmt.Fprintf(w, "\n  Tilt:     %.1f%% (best: %s, worst: %s)\n", field.TiltPct, field.BestCorner, field.WorstCorner)
	fmt.Fprintf(w, "  Off-axis: %.1f%%\n", field.OffAxisPct)
	if !field.Reliable {
		fmt.Fprintln(w, "  [LOW STAR COUNT - UNRELIABLE]")
	}
	fmt.Fprintln(w, "==============================")
}

func medianMAD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	med := middle(sorted)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	return med, 1.4826 * middle(dev)
}

func middle(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
