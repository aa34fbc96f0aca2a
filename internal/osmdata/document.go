// Package osmdata decodes OSM XML payloads (as returned by the Overpass API)
// and resolves way node references to coordinates.
package osmdata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/layer"
)

// ErrMalformed is returned when the payload is not a readable OSM document.
var ErrMalformed = errors.New("malformed OSM document")

// IsMalformed reports whether err came from an unreadable payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// Document is a decoded OSM payload with its nodes indexed by id.
type Document struct {
	osm   *osm.OSM
	nodes map[osm.NodeID]*osm.Node
}

// Parse decodes an OSM XML payload.
func Parse(payload []byte) (*Document, error) {
	return Decode(bytes.NewReader(payload))
}

// Decode reads an OSM XML payload from r.
func Decode(r io.Reader) (*Document, error) {
	o := &osm.OSM{}
	if err := xml.NewDecoder(r).Decode(o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	nodes := make(map[osm.NodeID]*osm.Node, len(o.Nodes))
	for _, n := range o.Nodes {
		nodes[n.ID] = n
	}

	return &Document{osm: o, nodes: nodes}, nil
}

// OSM returns the underlying decoded document.
func (d *Document) OSM() *osm.OSM {
	return d.osm
}

// NodeCount returns the number of nodes in the payload.
func (d *Document) NodeCount() int {
	return len(d.nodes)
}

// WayCount returns the number of ways in the payload.
func (d *Document) WayCount() int {
	return len(d.osm.Ways)
}

// Bounds returns the <bounds> element embedded in the payload, if any.
func (d *Document) Bounds() (geo.Bounds, bool) {
	b := d.osm.Bounds
	if b == nil {
		return geo.Bounds{}, false
	}
	return geo.Bounds{North: b.MaxLat, South: b.MinLat, East: b.MaxLon, West: b.MinLon}, true
}

// Elements returns one element per way in document order. Tags keep the
// order in which the payload listed them.
func (d *Document) Elements() []layer.Element {
	out := make([]layer.Element, 0, len(d.osm.Ways))
	for _, w := range d.osm.Ways {
		el := layer.Element{
			ID:   int64(w.ID),
			Refs: make([]int64, len(w.Nodes)),
			Tags: make([]layer.Tag, len(w.Tags)),
		}
		for i, wn := range w.Nodes {
			el.Refs[i] = int64(wn.ID)
		}
		for i, t := range w.Tags {
			el.Tags[i] = layer.Tag{Key: t.Key, Value: t.Value}
		}
		out = append(out, el)
	}
	return out
}

// Resolve looks up the coordinate of a node reference.
func (d *Document) Resolve(ref int64) (geo.Point, bool) {
	n, ok := d.nodes[osm.NodeID(ref)]
	if !ok {
		return geo.Point{}, false
	}
	return geo.Point{Lat: n.Lat, Lon: n.Lon}, true
}

// Resolved is one point of an element. When Unresolved is set the reference
// had no node in the payload and Point is the zero value.
type Resolved struct {
	Ref        int64
	Point      geo.Point
	Unresolved bool
}

// ResolveAll resolves every reference of el in order.
func (d *Document) ResolveAll(el layer.Element) []Resolved {
	out := make([]Resolved, len(el.Refs))
	for i, ref := range el.Refs {
		p, ok := d.Resolve(ref)
		out[i] = Resolved{Ref: ref, Point: p, Unresolved: !ok}
	}
	return out
}

// Geometry returns the resolved points of el as a line, or a polygon when
// the way is closed. Unresolved references are left out.
func (d *Document) Geometry(el layer.Element) (orb.Geometry, bool) {
	var line orb.LineString
	for _, r := range d.ResolveAll(el) {
		if !r.Unresolved {
			line = append(line, orb.Point{r.Point.Lon, r.Point.Lat})
		}
	}
	if len(line) == 0 {
		return nil, false
	}
	if len(line) > 3 && line[0] == line[len(line)-1] {
		return orb.Polygon{orb.Ring(line)}, true
	}
	return line, true
}
