// Package geojson exports a classified layer tree as a GeoJSON feature collection.
package geojson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/mapfactory/internal/layer"
)

// GeometryFunc returns the geometry of an element, or false when it has none.
type GeometryFunc func(el layer.Element) (orb.Geometry, bool)

// FromTree converts every leaf of tree into a feature. Properties carry the
// OSM tags plus "osm_id" ("way/<id>") and "layer" (the group path joined by
// "/"). Elements without geometry are skipped.
func FromTree(tree *layer.Node, geometry GeometryFunc) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	tree.Walk(func(path []string, it layer.Item) {
		leaf, ok := it.(layer.Leaf)
		if !ok {
			return
		}
		g, ok := geometry(leaf.Element)
		if !ok || g == nil {
			return
		}

		f := geojson.NewFeature(g)
		for _, t := range leaf.Element.Tags {
			f.Properties[t.Key] = t.Value
		}
		f.Properties["osm_id"] = fmt.Sprintf("way/%d", leaf.Element.ID)
		f.Properties["layer"] = strings.Join(path, "/")
		fc.Append(f)
	})

	return fc
}

// ToBytes converts the tree to indented GeoJSON.
func ToBytes(tree *layer.Node, geometry GeometryFunc) ([]byte, error) {
	data, err := json.MarshalIndent(FromTree(tree, geometry), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}

// LayerSummary returns a one-line count of features per top-level layer.
func LayerSummary(fc *geojson.FeatureCollection) string {
	counts := map[string]int{}
	var order []string
	for _, f := range fc.Features {
		l, _ := f.Properties["layer"].(string)
		top, _, _ := strings.Cut(l, "/")
		if _, seen := counts[top]; !seen {
			order = append(order, top)
		}
		counts[top]++
	}

	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return fmt.Sprintf("%s (Total: %d)", strings.Join(parts, ", "), len(fc.Features))
}
