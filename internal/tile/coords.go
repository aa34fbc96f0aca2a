package tile

import (
	"fmt"

	"github.com/paulmach/orb/maptile"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
)

// Coords identifies a single slippy-map tile (z/x/y, y counted from the north).
type Coords struct {
	Z uint32 // Zoom level
	X uint32 // Column
	Y uint32 // Row
}

// NewCoords creates a new Coords from zoom, x, y values
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// FromTile converts an orb maptile.Tile.
func FromTile(t maptile.Tile) Coords {
	return Coords{Z: uint32(t.Z), X: t.X, Y: t.Y}
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Path returns the file name for this tile with the given extension.
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%s.%s", c.String(), extension)
}

// Tile returns the maptile.Tile for this coordinate
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Index drops the zoom level.
func (c Coords) Index() Index {
	return Index{X: int(c.X), Y: int(c.Y)}
}

// TMSRow returns the row counted from the south, as stored in MBTiles.
func (c Coords) TMSRow() uint32 {
	return (1 << c.Z) - 1 - c.Y
}

// Bounds returns the geographic extent of the tile.
func (c Coords) Bounds() geo.Bounds {
	return geo.FromBound(c.Tile().Bound())
}

// ParseCoords parses a tile string like "z13_x4297_y2754" into Coords
func ParseCoords(s string) (Coords, error) {
	var c Coords
	_, err := fmt.Sscanf(s, "z%d_x%d_y%d", &c.Z, &c.X, &c.Y)
	if err != nil {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	return c, nil
}
