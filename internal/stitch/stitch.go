// Package stitch downloads the raster tiles covering a bounding box and
// composites them into one image.
package stitch

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/metrics"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
	"github.com/MeKo-Tech/mapfactory/internal/worker"
)

// MaxZoom is the highest zoom level accepted.
const MaxZoom = 24

// Params identifies one stitch. Two runs with equal Params produce the same
// image.
type Params struct {
	Template string
	Bounds   geo.Bounds
	Zoom     int
}

// Validate checks the bounds, including the Web Mercator latitude limit,
// the zoom and the URL template.
func (p Params) Validate() error {
	if err := p.Bounds.Validate(); err != nil {
		return err
	}
	if err := tile.CheckLatitudes(p.Bounds); err != nil {
		return err
	}
	if p.Zoom < 0 || p.Zoom > MaxZoom {
		return fmt.Errorf("zoom %d outside [0, %d]", p.Zoom, MaxZoom)
	}
	return tile.ValidateTemplate(p.Template)
}

// Footprint returns the tiles covering the bounds.
func (p Params) Footprint() tile.Footprint {
	return tile.FootprintOf(p.Bounds, p.Zoom)
}

// ProgressFunc receives the number of tiles loaded so far.
type ProgressFunc func(loaded, total int)

// Plan is a validated run: the footprint and one request per tile in
// row-major order.
type Plan struct {
	Params    Params
	Footprint tile.Footprint
	Requests  []Request
}

// Config configures a Stitcher.
type Config struct {
	Fetcher Fetcher
	Logger  *slog.Logger
	// Workers bounds concurrent fetches. Zero means one at a time.
	Workers int
}

// Stitcher runs the fetch and composite steps.
type Stitcher struct {
	fetcher Fetcher
	logger  *slog.Logger
	workers int
}

// New creates a Stitcher.
func New(cfg Config) *Stitcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Stitcher{fetcher: cfg.Fetcher, logger: cfg.Logger, workers: workers}
}

func (s *Stitcher) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Plan validates p and lists the tile requests. No I/O happens here.
func (s *Stitcher) Plan(p Params) (*Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	fp := p.Footprint()
	if fp.Empty() {
		return nil, fmt.Errorf("%w: %s at zoom %d", ErrEmptyFootprint, p.Bounds, p.Zoom)
	}

	plan := &Plan{Params: p, Footprint: fp, Requests: make([]Request, 0, fp.Count())}
	fp.ForEach(func(_ int, idx tile.Index) {
		plan.Requests = append(plan.Requests, Request{
			URL:    tile.ExpandURL(p.Template, p.Zoom, idx),
			Coords: idx.Coords(p.Zoom),
		})
	})
	return plan, nil
}

// Fetch downloads every tile of the plan. The first failure aborts the run
// and is returned as a *FetchError. progress is called after each tile that
// loads.
func (s *Stitcher) Fetch(ctx context.Context, plan *Plan, progress ProgressFunc) ([][]byte, error) {
	total := len(plan.Requests)
	s.log().Info("fetching tiles",
		"footprint", plan.Footprint.String(),
		"tiles", total,
		"workers", s.workers)
	if plan.Footprint.IsLarge() {
		s.log().Warn("large tile request", "tiles", total, "threshold", tile.LargeRequestThreshold)
	}
	metrics.StitchTiles.Observe(float64(total))

	pool := worker.New(worker.Config{
		Workers:  s.workers,
		FailFast: true,
		OnProgress: func(completed, total, failed int) {
			if progress != nil && failed == 0 {
				progress(completed, total)
			}
		},
	})

	results, err := worker.Run(ctx, pool, total, func(ctx context.Context, i int) ([]byte, error) {
		req := plan.Requests[i]
		data, err := s.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, &FetchError{Index: i, URL: req.URL, Err: err}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([][]byte, total)
	for i, r := range results {
		out[i] = r.Value
	}
	return out, nil
}

// Compose decodes the fetched tiles and composites them.
func (s *Stitcher) Compose(plan *Plan, data [][]byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrNoTiles
	}

	tiles := make([]image.Image, len(data))
	for i, b := range data {
		img, _, err := DecodeTile(b)
		if err != nil {
			return nil, fmt.Errorf("tile %d (%s): %w", i, plan.Requests[i].URL, err)
		}
		tiles[i] = img
	}

	canvas, size, err := Composite(plan.Footprint, tiles)
	if err != nil {
		return nil, err
	}

	p := plan.Params
	res := &Result{
		Image:      canvas,
		Params:     p,
		Footprint:  plan.Footprint,
		Offset:     tile.SubTileOffset(p.Bounds.North, p.Bounds.West, p.Zoom),
		TileWidth:  size.X,
		TileHeight: size.Y,
	}
	s.log().Debug("composited tiles",
		"width", canvas.Bounds().Dx(),
		"height", canvas.Bounds().Dy(),
		"offset", res.PixelOffset())
	return res, nil
}

// Stitch runs Plan, Fetch and Compose.
func (s *Stitcher) Stitch(ctx context.Context, p Params, progress ProgressFunc) (*Result, error) {
	plan, err := s.Plan(p)
	if err != nil {
		return nil, err
	}
	data, err := s.Fetch(ctx, plan, progress)
	if err != nil {
		metrics.StitchRuns.WithLabelValues(StateError.String()).Inc()
		return nil, err
	}
	res, err := s.Compose(plan, data)
	if err != nil {
		metrics.StitchRuns.WithLabelValues(StateError.String()).Inc()
		return nil, err
	}
	metrics.StitchRuns.WithLabelValues(StateLoaded.String()).Inc()
	return res, nil
}
