package svgrender

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/layer"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
)

// ErrNoBounds is returned when neither the options nor the source carry bounds.
var ErrNoBounds = errors.New("no bounds given and none embedded in the data")

// UnresolvedPolicy decides what happens to a way point whose node is missing.
type UnresolvedPolicy int

const (
	// Substitute draws the point at lat/lon 0,0.
	Substitute UnresolvedPolicy = iota
	// SkipPoint drops the point and keeps the rest of the polyline.
	SkipPoint
	// SkipElement drops the whole way.
	SkipElement
)

func (p UnresolvedPolicy) String() string {
	switch p {
	case Substitute:
		return "substitute"
	case SkipPoint:
		return "skip-point"
	case SkipElement:
		return "skip-element"
	default:
		return fmt.Sprintf("UnresolvedPolicy(%d)", int(p))
	}
}

// ParseUnresolvedPolicy parses the String form of a policy.
func ParseUnresolvedPolicy(s string) (UnresolvedPolicy, error) {
	switch s {
	case "", "substitute":
		return Substitute, nil
	case "skip-point":
		return SkipPoint, nil
	case "skip-element":
		return SkipElement, nil
	default:
		return Substitute, fmt.Errorf("unknown unresolved policy %q (want substitute, skip-point or skip-element)", s)
	}
}

// PointSource resolves the node references of an element.
type PointSource interface {
	ResolveAll(el layer.Element) []osmdata.Resolved
	Bounds() (geo.Bounds, bool)
}

// Options configures Render.
type Options struct {
	// Bounds overrides the bounds embedded in the source.
	Bounds *geo.Bounds
	// DisplayWidth is the width attribute of the <svg>; DefaultDisplayWidth if zero.
	DisplayWidth float64
	Unresolved   UnresolvedPolicy
	Logger       *slog.Logger
}

// Shape is a node of the drawing: *Group or *Polyline.
type Shape interface {
	isShape()
}

// Group is a <g> element. The root group has an empty ID.
type Group struct {
	ID       string
	Children []Shape
}

// Polyline is one way, drawn inside its own group named after the way id.
type Polyline struct {
	WayID  int64
	Points []Vec
}

// Vec is a point in drawing units.
type Vec struct {
	X float64
	Y float64
}

func (*Group) isShape()    {}
func (*Polyline) isShape() {}

// Stats counts what the render pass did with the source points.
type Stats struct {
	Elements        int
	Points          int
	Unresolved      int
	SkippedElements int
}

// Drawing is a rendered layer tree ready to be serialized.
type Drawing struct {
	Width         float64
	Height        float64
	DisplayWidth  float64
	DisplayHeight float64
	Root          *Group
	Stats         Stats
}

// Render projects every leaf of tree through src and builds the drawing.
func Render(tree *layer.Node, src PointSource, opts Options) (*Drawing, error) {
	var bounds geo.Bounds
	switch {
	case opts.Bounds != nil:
		bounds = *opts.Bounds
	default:
		b, ok := src.Bounds()
		if !ok {
			return nil, ErrNoBounds
		}
		bounds = b
	}

	proj, err := NewProjector(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to set up projection: %w", err)
	}

	displayWidth := opts.DisplayWidth
	if displayWidth <= 0 {
		displayWidth = DefaultDisplayWidth
	}

	r := &renderer{proj: proj, src: src, policy: opts.Unresolved}
	root := r.group("", tree)
	d := &Drawing{
		Width:         LogicalWidth,
		Height:        proj.Height(),
		DisplayWidth:  displayWidth,
		DisplayHeight: displayWidth / proj.Aspect(),
		Root:          root,
		Stats:         r.stats,
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if d.Stats.Unresolved > 0 {
		log.Warn("ways reference nodes missing from the data",
			"unresolved_points", d.Stats.Unresolved,
			"policy", opts.Unresolved.String(),
			"skipped_ways", d.Stats.SkippedElements)
	}
	log.Debug("rendered drawing",
		"ways", d.Stats.Elements,
		"points", d.Stats.Points,
		"height", d.Height)

	return d, nil
}

type renderer struct {
	proj   Projector
	src    PointSource
	policy UnresolvedPolicy
	stats  Stats
}

func (r *renderer) group(id string, n *layer.Node) *Group {
	g := &Group{ID: id}
	for _, it := range n.Items() {
		switch v := it.(type) {
		case *layer.Node:
			g.Children = append(g.Children, r.group(v.ID, v))
		case layer.Leaf:
			if pl, ok := r.polyline(v.Element); ok {
				g.Children = append(g.Children, pl)
			}
		}
	}
	return g
}

func (r *renderer) polyline(el layer.Element) (*Polyline, bool) {
	resolved := r.src.ResolveAll(el)
	pl := &Polyline{WayID: el.ID, Points: make([]Vec, 0, len(resolved))}

	for _, p := range resolved {
		if p.Unresolved {
			r.stats.Unresolved++
			switch r.policy {
			case SkipPoint:
				continue
			case SkipElement:
				r.stats.SkippedElements++
				return nil, false
			}
		}
		x, y := r.proj.Project(p.Point.Lat, p.Point.Lon)
		pl.Points = append(pl.Points, Vec{X: x, Y: y})
	}

	r.stats.Elements++
	r.stats.Points += len(pl.Points)
	return pl, true
}

// groupID returns the id attribute written for a way.
func groupID(wayID int64) string {
	return strconv.FormatInt(wayID, 10)
}
