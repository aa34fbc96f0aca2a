// Package svgrender draws a classified layer tree as nested SVG groups with
// one stroked polyline per way.
package svgrender

import (
	"fmt"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
)

// LogicalWidth is the viewBox width of every drawing.
const LogicalWidth = 1000.0

// DefaultDisplayWidth is the width attribute written on the <svg> element.
const DefaultDisplayWidth = 800.0

// Projector maps lat/lon into drawing units for one bounding box. The
// north-west corner lands on the origin and the east edge on LogicalWidth.
type Projector struct {
	nw     geo.XY
	scale  float64
	aspect float64
}

// NewProjector builds the projection for b. The box must be valid.
func NewProjector(b geo.Bounds) (Projector, error) {
	if err := b.Validate(); err != nil {
		return Projector{}, err
	}
	nw := geo.Mercator(b.North, b.West)
	se := geo.Mercator(b.South, b.East)

	// scale is negative here; Project negates both axes to compensate.
	scale := LogicalWidth / (nw.X - se.X)
	aspect := (se.X - nw.X) / (nw.Y - se.Y)
	if aspect <= 0 {
		return Projector{}, fmt.Errorf("%w: degenerate aspect %v for %s", geo.ErrInvalidBounds, aspect, b)
	}
	return Projector{nw: nw, scale: scale, aspect: aspect}, nil
}

// Project converts a coordinate into drawing units.
func (p Projector) Project(lat, lon float64) (float64, float64) {
	m := geo.Mercator(lat, lon)
	x := -(m.X - p.nw.X) * p.scale
	y := -(p.nw.Y - m.Y) * p.scale
	return x, y
}

// Aspect is width divided by height of the projected box.
func (p Projector) Aspect() float64 {
	return p.aspect
}

// Height is the viewBox height matching LogicalWidth.
func (p Projector) Height() float64 {
	return LogicalWidth / p.aspect
}
