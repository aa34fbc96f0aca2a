// Package pipeline wires the data sources, classification, rendering and
// tile stitching into the two map products: a vector drawing of OSM ways and
// a stitched raster of map tiles.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/layer"
	"github.com/MeKo-Tech/mapfactory/internal/metrics"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
	"github.com/MeKo-Tech/mapfactory/internal/svgrender"
)

// DocumentSource fetches the OSM document covering a box.
type DocumentSource interface {
	FetchDocument(ctx context.Context, b geo.Bounds) (*osmdata.Document, error)
}

// VectorOptions tunes the vector pipeline.
type VectorOptions struct {
	// FeatureKeys are the tag keys that place a way in the tree;
	// layer.DefaultFeatureKeys when empty.
	FeatureKeys  []string
	DisplayWidth float64
	Unresolved   svgrender.UnresolvedPolicy
}

// VectorMap is the outcome of one vector run.
type VectorMap struct {
	Document *osmdata.Document
	Tree     *layer.Node
	Drawing  *svgrender.Drawing
	Bounds   geo.Bounds
}

// Generator produces vector maps from a document source.
type Generator struct {
	docs   DocumentSource
	logger *slog.Logger
}

// NewGenerator prepares a generator.
func NewGenerator(docs DocumentSource, logger *slog.Logger) *Generator {
	return &Generator{docs: docs, logger: logger}
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

// Vector fetches the ways inside b, classifies them and renders the drawing
// framed on b.
func (g *Generator) Vector(ctx context.Context, b geo.Bounds, opts VectorOptions) (*VectorMap, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.IsLarge() {
		g.log().Warn("large area requested", "area_km2", b.AreaSquareMeters()/1e6)
	}

	start := time.Now()
	g.log().Info("Fetching OSM data", "bounds", b.QueryString())
	doc, err := g.docs.FetchDocument(ctx, b)
	if err != nil {
		metrics.OverpassQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch OSM data: %w", err)
	}
	metrics.OverpassQueries.WithLabelValues("ok").Inc()

	keys := opts.FeatureKeys
	if len(keys) == 0 {
		keys = layer.DefaultFeatureKeys
	}
	tree := layer.Classify(doc.Elements(), keys)
	g.log().Debug("Classified ways", "ways", doc.WayCount(), "placed", tree.Count())

	drawing, err := svgrender.Render(tree, doc, svgrender.Options{
		Bounds:       &b,
		DisplayWidth: opts.DisplayWidth,
		Unresolved:   opts.Unresolved,
		Logger:       g.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render drawing: %w", err)
	}
	metrics.RenderedWays.Observe(float64(drawing.Stats.Elements))

	g.log().Info("Rendered vector map",
		"ways", drawing.Stats.Elements,
		"points", drawing.Stats.Points,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &VectorMap{Document: doc, Tree: tree, Drawing: drawing, Bounds: b}, nil
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, write func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
