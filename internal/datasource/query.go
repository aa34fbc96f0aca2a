package datasource

import (
	"fmt"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
)

// DefaultEndpoint is the public Overpass API interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// BuildQueryAll returns the Overpass QL query for every way intersecting b,
// recursed down to its nodes, as OSM XML with metadata. The bbox filter uses
// the south,west,north,east order the API expects.
func BuildQueryAll(b geo.Bounds) string {
	return fmt.Sprintf("way(%s);(._;>;);out meta;", b.QueryString())
}

// BuildQueryGeometry returns a JSON query for every way intersecting b with
// inline geometry. Per-element bbox filters make Overpass return the full way
// rather than clipping it at the box edge.
func BuildQueryGeometry(b geo.Bounds) string {
	return fmt.Sprintf("[out:json][timeout:60];\nway(%s);\nout geom;\n", b.QueryString())
}
