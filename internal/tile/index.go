package tile

import (
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
)

// LargeRequestThreshold is the advisory tile count above which a stitch run
// should be confirmed by the user. It is not enforced.
const LargeRequestThreshold = 100

// MaxLatitude is the Web Mercator latitude limit. Tile rows are only defined
// between -MaxLatitude and MaxLatitude.
const MaxLatitude = 85.0511287798

// CheckLatitudes rejects bounds reaching past MaxLatitude.
func CheckLatitudes(b geo.Bounds) error {
	if b.North > MaxLatitude || b.South < -MaxLatitude {
		return fmt.Errorf("%w: latitude outside web mercator range [%v, %v]: %s",
			geo.ErrInvalidBounds, -MaxLatitude, MaxLatitude, b)
	}
	return nil
}

// UnitMeters returns the side length of one tile at zoom in Web Mercator meters.
func UnitMeters(zoom int) float64 {
	return geo.Circumference / math.Exp2(float64(zoom))
}

// Index is a tile column/row at an implied zoom level.
type Index struct {
	X int
	Y int
}

// Coords attaches a zoom level to the index.
func (i Index) Coords(zoom int) Coords {
	return NewCoords(uint32(zoom), uint32(i.X), uint32(i.Y))
}

func (i Index) String() string {
	return fmt.Sprintf("%d/%d", i.X, i.Y)
}

// IndexAt returns the tile containing lat/lng at zoom.
func IndexAt(lat, lng float64, zoom int) Index {
	fx, fy := ratio(lat, lng, zoom)
	return Index{X: int(math.Floor(fx)), Y: int(math.Floor(fy))}
}

// Offset is the fractional position of a point inside its tile, in [0,1) on
// both axes.
type Offset struct {
	X float64
	Y float64
}

// Pixels scales the offset to a tile of the given pixel size, truncating
// toward the tile origin.
func (o Offset) Pixels(tileWidth, tileHeight int) image.Point {
	return image.Pt(int(o.X*float64(tileWidth)), int(o.Y*float64(tileHeight)))
}

// SubTileOffset returns where lat/lng falls within the tile that IndexAt
// reports for it.
func SubTileOffset(lat, lng float64, zoom int) Offset {
	fx, fy := ratio(lat, lng, zoom)
	return Offset{X: frac(fx), Y: frac(fy)}
}

// frac returns v - floor(v) in [0, 1). For tiny negative v the subtraction
// rounds up to 1, which belongs to the next tile.
func frac(v float64) float64 {
	f := v - math.Floor(v)
	if f >= 1 {
		return 0
	}
	return f
}

// ratio is the point position measured in tiles. IndexAt and SubTileOffset
// both derive from it so they always agree on the owning tile.
func ratio(lat, lng float64, zoom int) (float64, float64) {
	m := geo.MetersFromLatLng(lat, lng)
	unit := UnitMeters(zoom)
	return m.X / unit, m.Y / unit
}

// Footprint is the inclusive tile range covering a bounding box.
type Footprint struct {
	StartX int
	StartY int
	EndX   int
	EndY   int
}

// FootprintOf returns the tiles covering b at zoom. The start tile holds the
// north-west corner and the end tile the south-east corner. An inverted box
// yields an empty footprint rather than an error.
func FootprintOf(b geo.Bounds, zoom int) Footprint {
	start := IndexAt(b.North, b.West, zoom)
	end := IndexAt(b.South, b.East, zoom)
	return Footprint{StartX: start.X, StartY: start.Y, EndX: end.X, EndY: end.Y}
}

// Width is the number of tile columns. It is zero or negative when empty.
func (f Footprint) Width() int {
	return f.EndX - f.StartX + 1
}

// Height is the number of tile rows. It is zero or negative when empty.
func (f Footprint) Height() int {
	return f.EndY - f.StartY + 1
}

// Empty reports whether the range covers no tiles.
func (f Footprint) Empty() bool {
	return f.Width() <= 0 || f.Height() <= 0
}

// Count returns the number of tiles in the range, 0 when empty.
func (f Footprint) Count() int {
	if f.Empty() {
		return 0
	}
	return f.Width() * f.Height()
}

// IsLarge reports whether the range exceeds LargeRequestThreshold.
func (f Footprint) IsLarge() bool {
	return f.Count() > LargeRequestThreshold
}

// Start returns the north-west tile.
func (f Footprint) Start() Index {
	return Index{X: f.StartX, Y: f.StartY}
}

// Contains reports whether idx lies inside the range.
func (f Footprint) Contains(idx Index) bool {
	return idx.X >= f.StartX && idx.X <= f.EndX && idx.Y >= f.StartY && idx.Y <= f.EndY
}

// ForEach visits every tile row by row, north to south, and west to east
// within a row. The callback receives the tile's position in that order.
func (f Footprint) ForEach(fn func(n int, idx Index)) {
	n := 0
	for y := f.StartY; y <= f.EndY; y++ {
		for x := f.StartX; x <= f.EndX; x++ {
			fn(n, Index{X: x, Y: y})
			n++
		}
	}
}

// Indices returns the tiles in ForEach order.
func (f Footprint) Indices() []Index {
	out := make([]Index, 0, f.Count())
	f.ForEach(func(_ int, idx Index) {
		out = append(out, idx)
	})
	return out
}

func (f Footprint) String() string {
	return fmt.Sprintf("x[%d-%d] y[%d-%d] (%d tiles)", f.StartX, f.EndX, f.StartY, f.EndY, f.Count())
}
