package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/layer"
)

// OverpassDataSource fetches ways with inline geometry from the Overpass JSON API.
type OverpassDataSource struct {
	client overpass.Client
	logger *slog.Logger
}

// NewOverpassDataSource creates a new Overpass data source
func NewOverpassDataSource(endpoint string, httpClient *http.Client) *OverpassDataSource {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// Create client (rate limited to 1 concurrent request)
	client := overpass.NewWithSettings(
		endpoint,
		1, // Only 1 parallel request (API etiquette)
		httpClient,
	)

	return &OverpassDataSource{client: client}
}

// WithLogger sets the logger used for fetch diagnostics.
func (ds *OverpassDataSource) WithLogger(logger *slog.Logger) *OverpassDataSource {
	ds.logger = logger
	return ds
}

func (ds *OverpassDataSource) log() *slog.Logger {
	if ds.logger != nil {
		return ds.logger
	}
	return slog.Default()
}

// WaySet is a set of ways with their geometry keyed by way id.
type WaySet struct {
	Elements []layer.Element
	Geometry map[int64]orb.Geometry
}

// GeometryOf returns the geometry recorded for el.
func (s WaySet) GeometryOf(el layer.Element) (orb.Geometry, bool) {
	g, ok := s.Geometry[el.ID]
	return g, ok
}

// FetchWays fetches every way intersecting b.
func (ds *OverpassDataSource) FetchWays(ctx context.Context, b geo.Bounds) (WaySet, error) {
	if err := ctx.Err(); err != nil {
		return WaySet{}, err
	}

	// go-overpass does not take a context; the HTTP client timeout bounds the call.
	result, err := ds.client.Query(BuildQueryGeometry(b))
	if err != nil {
		return WaySet{}, fmt.Errorf("overpass query failed: %w", err)
	}

	set := ExtractWays(&result)
	ds.log().Info("fetched OSM ways", "bounds", b.QueryString(), "ways", len(set.Elements))
	return set, nil
}

// UnmarshalOverpassJSON decodes an Overpass API JSON response into an overpass.Result.
func UnmarshalOverpassJSON(data []byte) (*overpass.Result, error) {
	var result overpass.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overpass json: %w", err)
	}
	return &result, nil
}

// ExtractWays converts the ways of an Overpass result, ordered by id. JSON
// tags carry no order, so they are sorted by key.
func ExtractWays(result *overpass.Result) WaySet {
	set := WaySet{Geometry: make(map[int64]orb.Geometry)}
	if result == nil {
		return set
	}

	ids := make([]int64, 0, len(result.Ways))
	for id := range result.Ways {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		way := result.Ways[id]
		if way == nil {
			continue
		}
		el := layer.Element{ID: way.ID, Tags: sortedTags(way.Tags)}
		for _, n := range way.Nodes {
			if n != nil {
				el.Refs = append(el.Refs, n.ID)
			}
		}
		set.Elements = append(set.Elements, el)

		if g := wayGeometry(way); g != nil {
			set.Geometry[way.ID] = g
		}
	}
	return set
}

func wayGeometry(way *overpass.Way) orb.Geometry {
	var points orb.LineString
	if len(way.Geometry) > 0 {
		points = make(orb.LineString, len(way.Geometry))
		for i, p := range way.Geometry {
			points[i] = orb.Point{p.Lon, p.Lat}
		}
	} else {
		for _, n := range way.Nodes {
			if n != nil {
				points = append(points, orb.Point{n.Lon, n.Lat})
			}
		}
	}
	if len(points) == 0 {
		return nil
	}

	if len(points) > 2 && points[0] == points[len(points)-1] {
		return orb.Polygon{orb.Ring(points)}
	}
	return points
}

func sortedTags(tags map[string]string) []layer.Tag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]layer.Tag, len(keys))
	for i, k := range keys {
		out[i] = layer.Tag{Key: k, Value: tags[k]}
	}
	return out
}
