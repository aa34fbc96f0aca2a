package osmdata

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/layer"
)

const samplePayload = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="Overpass API">
  <bounds minlat="36.0802" minlon="140.1062" maxlat="36.0849" maxlon="140.1175"/>
  <node id="1" lat="36.0849" lon="140.1062" version="1"/>
  <node id="2" lat="36.0802" lon="140.1175" version="1"/>
  <node id="3" lat="36.0820" lon="140.1100" version="1"/>
  <way id="100" version="2">
    <nd ref="1"/>
    <nd ref="2"/>
    <tag k="name" v="Main"/>
    <tag k="highway" v="primary"/>
    <tag k="building" v="yes"/>
  </way>
  <way id="101" version="1">
    <nd ref="3"/>
    <nd ref="999"/>
    <nd ref="1"/>
    <tag k="building" v="yes"/>
  </way>
</osm>`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(samplePayload))
	require.NoError(t, err)
	require.Equal(t, 3, doc.NodeCount())
	require.Equal(t, 2, doc.WayCount())

	b, ok := doc.Bounds()
	require.True(t, ok)
	require.Equal(t, geo.Bounds{North: 36.0849, South: 36.0802, East: 140.1175, West: 140.1062}, b)
}

func TestElementsKeepDocumentOrder(t *testing.T) {
	doc, err := Parse([]byte(samplePayload))
	require.NoError(t, err)

	els := doc.Elements()
	require.Len(t, els, 2)
	require.Equal(t, int64(100), els[0].ID)
	require.Equal(t, []int64{1, 2}, els[0].Refs)
	require.Equal(t, []layer.Tag{
		{Key: "name", Value: "Main"},
		{Key: "highway", Value: "primary"},
		{Key: "building", Value: "yes"},
	}, els[0].Tags)

	// Document tag order drives classification.
	root := layer.Classify(els, layer.DefaultFeatureKeys)
	groups := root.Groups()
	require.Len(t, groups, 2)
	require.Equal(t, "highway", groups[0].ID)
	require.Equal(t, "building", groups[1].ID)
}

func TestResolveAllMarksMissingNodes(t *testing.T) {
	doc, err := Parse([]byte(samplePayload))
	require.NoError(t, err)

	pts := doc.ResolveAll(doc.Elements()[1])
	require.Len(t, pts, 3)
	require.False(t, pts[0].Unresolved)
	require.Equal(t, geo.Point{Lat: 36.0820, Lon: 140.1100}, pts[0].Point)
	require.True(t, pts[1].Unresolved)
	require.Equal(t, int64(999), pts[1].Ref)
	require.Equal(t, geo.Point{}, pts[1].Point)
	require.False(t, pts[2].Unresolved)
}

func TestParseMalformed(t *testing.T) {
	for _, payload := range []string{"", "not xml at all", "<osm><node id=\"1\""} {
		_, err := Parse([]byte(payload))
		require.Error(t, err, "payload %q", payload)
		require.True(t, IsMalformed(err))
	}
}

func TestParseWithoutBounds(t *testing.T) {
	doc, err := Parse([]byte(`<osm version="0.6"><node id="1" lat="1" lon="2"/></osm>`))
	require.NoError(t, err)
	_, ok := doc.Bounds()
	require.False(t, ok)
	require.Empty(t, doc.Elements())
}

func TestGeometry(t *testing.T) {
	doc, err := Parse([]byte(samplePayload))
	require.NoError(t, err)
	els := doc.Elements()

	g, ok := doc.Geometry(els[0])
	require.True(t, ok)
	require.Equal(t, orb.LineString{{140.1062, 36.0849}, {140.1175, 36.0802}}, g)

	// The missing node is dropped from the line.
	g, ok = doc.Geometry(els[1])
	require.True(t, ok)
	require.Equal(t, orb.LineString{{140.1100, 36.0820}, {140.1062, 36.0849}}, g)

	closed, err := Parse([]byte(`<osm version="0.6">
  <node id="1" lat="0" lon="0"/><node id="2" lat="0" lon="1"/><node id="3" lat="1" lon="1"/>
  <way id="7"><nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/></way>
</osm>`))
	require.NoError(t, err)
	g, ok = closed.Geometry(closed.Elements()[0])
	require.True(t, ok)
	require.IsType(t, orb.Polygon{}, g)

	_, ok = doc.Geometry(layer.Element{ID: 1, Refs: []int64{404}})
	require.False(t, ok)
}
