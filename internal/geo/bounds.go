package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ErrInvalidBounds is returned for bounding boxes that are inverted, have zero
// area, or leave the projectable latitude range.
var ErrInvalidBounds = errors.New("invalid bounds")

// LargeAreaThreshold is the advisory area (10 km^2) above which a vector
// capture should be confirmed before querying the Overpass API.
const LargeAreaThreshold = 1000 * 1000 * 10

// Bounds is a non-wrapping geographic bounding box in degrees.
type Bounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

// NW returns the north-west corner.
func (b Bounds) NW() Point {
	return Point{Lat: b.North, Lon: b.West}
}

// SE returns the south-east corner.
func (b Bounds) SE() Point {
	return Point{Lat: b.South, Lon: b.East}
}

// Center returns the midpoint in degrees.
func (b Bounds) Center() Point {
	return Point{Lat: (b.North + b.South) / 2, Lon: (b.East + b.West) / 2}
}

// Validate reports whether the box can be projected and tiled.
// Inverted and zero-area boxes are rejected rather than normalized.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %s", ErrInvalidBounds, b)
		}
	}
	if b.North >= 90 || b.South <= -90 {
		return fmt.Errorf("%w: latitude outside (-90, 90) in %s", ErrInvalidBounds, b)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("%w: longitude outside [-180, 180] in %s", ErrInvalidBounds, b)
	}
	if b.North <= b.South {
		return fmt.Errorf("%w: north (%v) must be greater than south (%v)", ErrInvalidBounds, b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("%w: east (%v) must be greater than west (%v)", ErrInvalidBounds, b.East, b.West)
	}
	return nil
}

// Normalize returns the box with swapped edges put back in order.
func (b Bounds) Normalize() Bounds {
	if b.North < b.South {
		b.North, b.South = b.South, b.North
	}
	if b.East < b.West {
		b.East, b.West = b.West, b.East
	}
	return b
}

// AreaSquareMeters returns width x height measured in Web Mercator meters.
func (b Bounds) AreaSquareMeters() float64 {
	nw := MetersFromLatLng(b.North, b.West)
	se := MetersFromLatLng(b.South, b.East)
	return math.Abs(se.X-nw.X) * math.Abs(se.Y-nw.Y)
}

// IsLarge reports whether the box exceeds LargeAreaThreshold.
func (b Bounds) IsLarge() bool {
	return b.AreaSquareMeters() > LargeAreaThreshold
}

// Bound converts to an orb.Bound (lon/lat ordering).
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// FromBound converts an orb.Bound into Bounds.
func FromBound(bound orb.Bound) Bounds {
	return Bounds{
		North: bound.Max.Lat(),
		South: bound.Min.Lat(),
		East:  bound.Max.Lon(),
		West:  bound.Min.Lon(),
	}
}

// QueryString serializes the box as "south,west,north,east", the order the
// Overpass API expects. Values use the shortest representation that parses
// back to the identical float64.
func (b Bounds) QueryString() string {
	return joinFloats(b.South, b.West, b.North, b.East)
}

// FileStem names a downloaded artifact after the box, e.g.
// "map-factory_36.0802,140.1062,36.0849,140.1175".
func (b Bounds) FileStem(prefix string) string {
	if prefix == "" {
		prefix = "map-factory"
	}
	return prefix + "_" + b.QueryString()
}

// CornerList serializes the box as "north,west,south,east" (the two map
// corners, north-west first), the layout used in shared map links.
func (b Bounds) CornerList() string {
	return joinFloats(b.North, b.West, b.South, b.East)
}

// String returns a human-readable representation of the bounding box.
func (b Bounds) String() string {
	return fmt.Sprintf("bounds(n=%.6f,s=%.6f,e=%.6f,w=%.6f)", b.North, b.South, b.East, b.West)
}

// ParseQueryString parses "south,west,north,east". It is the exact inverse of
// QueryString and does not reorder or validate the values.
func ParseQueryString(s string) (Bounds, error) {
	v, err := splitFloats(s)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{South: v[0], West: v[1], North: v[2], East: v[3]}, nil
}

// ParseCornerList parses "lat1,lon1,lat2,lon2" (two opposite corners, in any
// order) into a normalized box.
func ParseCornerList(s string) (Bounds, error) {
	v, err := splitFloats(s)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{North: v[0], West: v[1], South: v[2], East: v[3]}.Normalize(), nil
}

func joinFloats(vals ...float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func splitFloats(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return out, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
