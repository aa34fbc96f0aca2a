// Package mbtiles stores raster tiles in an MBTiles (SQLite) database. It
// backs the tile cache used by stitch runs, one file per tile source.
package mbtiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
)

// ErrTileNotFound is returned by Get when the cache has no entry for a tile.
var ErrTileNotFound = errors.New("tile not found")

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Tile source identifier
	Format      string // Tile data type (png, jpg, webp)
	Attribution string
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      [4]float64 // minLon, minLat, maxLon, maxLat
	MinZoom     int
	MaxZoom     int
}

// SetBounds stores b in MBTiles order.
func (m *Metadata) SetBounds(b geo.Bounds) {
	m.Bounds = [4]float64{b.West, b.South, b.East, b.North}
}

// GeoBounds returns the stored bounds, if any.
func (m Metadata) GeoBounds() (geo.Bounds, bool) {
	if m.Bounds == [4]float64{} {
		return geo.Bounds{}, false
	}
	return geo.Bounds{West: m.Bounds[0], South: m.Bounds[1], East: m.Bounds[2], North: m.Bounds[3]}, true
}

// ToMap converts Metadata to a map for database insertion. Zero fields are
// left out.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	set := func(k, v string) {
		if v != "" {
			result[k] = v
		}
	}
	set("name", m.Name)
	set("format", m.Format)
	set("attribution", m.Attribution)
	set("description", m.Description)
	set("type", m.Type)
	set("version", m.Version)

	if m.MinZoom > 0 {
		result["minzoom"] = strconv.Itoa(m.MinZoom)
	}
	if m.MaxZoom > 0 {
		result["maxzoom"] = strconv.Itoa(m.MaxZoom)
	}
	if m.Bounds != [4]float64{} {
		result["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}

	return result
}

// metadataFromMap is the inverse of ToMap. Unparseable numbers are ignored.
func metadataFromMap(values map[string]string) Metadata {
	meta := Metadata{
		Name:        values["name"],
		Format:      values["format"],
		Attribution: values["attribution"],
		Description: values["description"],
		Type:        values["type"],
		Version:     values["version"],
	}

	if v, ok := values["minzoom"]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			meta.MinZoom = i
		}
	}
	if v, ok := values["maxzoom"]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			meta.MaxZoom = i
		}
	}

	// "minLon,minLat,maxLon,maxLat"
	if v, ok := values["bounds"]; ok {
		parts := strings.Split(v, ",")
		if len(parts) == 4 {
			for i, part := range parts {
				if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
					meta.Bounds[i] = f
				}
			}
		}
	}

	return meta
}
