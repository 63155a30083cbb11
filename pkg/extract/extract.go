package extract

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// Extract scans bounds at the detection level, deblends and measures every
// group on a pool of Params.Workers goroutines, then classifies the objects
// and builds the catalog in scan order. It returns an empty catalog and
// ErrNoObjects when nothing is detected.
func (e *Engine) Extract(ctx context.Context, bounds image.Rectangle) (*Catalog, error) {
	p := e.Params
	startTime := time.Now()

	list, err := e.Scan(bounds, e.DetectionLevel(), p.MinArea)
	if err != nil {
		return nil, err
	}
	cat := &Catalog{Background: e.Background, Sigma: e.Sigma, Threshold: e.Threshold()}
	e.logf("scan: %d groups above %.3f (%d pixels) in %v", list.Len(), list.Thresh, list.NPix, time.Since(startTime))
	if list.Len() == 0 {
		return cat, ErrNoObjects
	}

	groups := make([]*ObjectList, list.Len())
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(1, p.Workers))
	for i := range list.Objects {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			groups[i] = e.processGroup(list, i)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.finish(cat, groups)
	e.logf("extract: %d objects, seeing %.2f px, %v", len(cat.Objects), cat.Seeing, time.Since(startTime))
	return cat, nil
}

// processGroup deblends group i of list and measures the resulting objects.
// A fatal deblend error leaves the group as detected, flagged.
func (e *Engine) processGroup(list *ObjectList, i int) *ObjectList {
	p := e.Params
	var g *ObjectList
	if p.Deblend {
		var err error
		g, err = e.Deblend(list, i, groupRNG(p.Seed, i))
		if err != nil {
			flag := FlagOverflow
			if errors.Is(err, ErrDeblendOverflow) {
				flag = FlagDeblendOverflow
			}
			e.logf("deblend: group %d at (%.1f, %.1f): %v", i, list.Objects[i].MX, list.Objects[i].MY, err)
			g = isolate(list, i)
			g.Objects[0].Flags |= flag
		}
	} else {
		g = isolate(list, i)
	}

	var pre float64
	for j := range g.Objects {
		pre += g.Objects[j].Flux
	}
	for j := range g.Objects {
		e.Measure(g, j, pre)
	}
	var total float64
	for j := range g.Objects {
		total += g.Objects[j].Flux
	}
	for j := range g.Objects {
		g.Objects[j].GroupFlux = total
	}
	return g
}

// isolate copies object i of list into a list of its own.
func isolate(list *ObjectList, i int) *ObjectList {
	o := list.Objects[i]
	g := &ObjectList{Thresh: list.Thresh, Pixels: make([]Pixel, 0, o.NPix)}
	c, _ := g.appendChain(list, i, 0)
	g.Objects = append(g.Objects, c)
	return g
}

// finish runs the sequential stages: crowding, seeing, classification, best
// magnitude, catalog rows and the object hook.
func (e *Engine) finish(cat *Catalog, groups []*ObjectList) {
	p := e.Params
	for _, g := range groups {
		if g == nil {
			continue
		}
		cat.Lists = append(cat.Lists, g)
		for j := range g.Objects {
			o := &g.Objects[j]
			if o.Flux > 0 && o.GroupFlux > p.CrowdContrast*o.Flux {
				o.Flags |= FlagCrowded
			}
			cat.Objects = append(cat.Objects, o)
		}
	}

	cat.Seeing = p.SeeingFWHM
	if cat.Seeing <= 0 {
		cat.Seeing = estimateSeeing(cat.Objects)
	}

	cat.Rows = make([]string, 0, len(cat.Objects))
	for n, o := range cat.Objects {
		o.ID = n + 1
		o.StarClass = starClassifier.starClass(o, e.isoLevels(o), cat.Seeing)
		if o.Flags&FlagCrowded != 0 {
			o.MagBest, o.MagBestErr = o.MagIsoCor, o.MagIsoCorErr
		} else {
			o.MagBest, o.MagBestErr = o.MagAuto, o.MagAutoErr
		}
		cat.Rows = append(cat.Rows, FormatRow(o))
		if e.Hook != nil {
			e.Hook.ObjectDone(o, formatMag(o.MagIso))
		}
	}
}
