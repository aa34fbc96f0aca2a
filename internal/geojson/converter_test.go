package geojson

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/mapfactory/internal/layer"
)

func testTree() (*layer.Node, map[int64]orb.Geometry) {
	elements := []layer.Element{
		{ID: 1, Tags: []layer.Tag{{Key: "highway", Value: "primary"}, {Key: "name", Value: "Main Street"}}},
		{ID: 2, Tags: []layer.Tag{{Key: "natural", Value: "water"}}},
		{ID: 3, Tags: []layer.Tag{{Key: "highway", Value: "service"}}},
	}
	geoms := map[int64]orb.Geometry{
		1: orb.LineString{{140.10, 36.08}, {140.11, 36.09}},
		2: orb.Polygon{{{140.10, 36.08}, {140.11, 36.08}, {140.11, 36.09}, {140.10, 36.08}}},
	}
	return layer.Classify(elements, layer.DefaultFeatureKeys), geoms
}

func lookup(geoms map[int64]orb.Geometry) GeometryFunc {
	return func(el layer.Element) (orb.Geometry, bool) {
		g, ok := geoms[el.ID]
		return g, ok
	}
}

func TestFromTree(t *testing.T) {
	tree, geoms := testTree()
	fc := FromTree(tree, lookup(geoms))

	// Way 3 has no geometry and is skipped.
	require.Len(t, fc.Features, 2)

	road := fc.Features[0]
	require.Equal(t, "LineString", road.Geometry.GeoJSONType())
	require.Equal(t, "way/1", road.Properties["osm_id"])
	require.Equal(t, "highway/primary", road.Properties["layer"])
	require.Equal(t, "Main Street", road.Properties["name"])

	water := fc.Features[1]
	require.Equal(t, "Polygon", water.Geometry.GeoJSONType())
	require.Equal(t, "natural/water", water.Properties["layer"])
}

func TestToBytes(t *testing.T) {
	tree, geoms := testTree()
	data, err := ToBytes(tree, lookup(geoms))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "FeatureCollection", decoded["type"])
	require.Len(t, decoded["features"], 2)
}

func TestLayerSummary(t *testing.T) {
	tree, geoms := testTree()
	geoms[3] = orb.LineString{{140.10, 36.08}, {140.12, 36.08}}
	summary := LayerSummary(FromTree(tree, lookup(geoms)))
	require.Equal(t, "highway: 2, natural: 1 (Total: 3)", summary)
}
