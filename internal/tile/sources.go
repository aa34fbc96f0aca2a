package tile

import (
	"fmt"
	"sort"
)

// Source is a named raster tile service.
type Source struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Format      string `json:"format"`
	Attribution string `json:"attribution"`
}

const (
	gsiAttribution = "地理院タイル (GSI Japan)"
	osmAttribution = "© OpenStreetMap contributors"
)

// DefaultSource is used when neither a source nor a template is given.
const DefaultSource = "GSI.std"

// Sources lists the built-in tile presets by name.
var Sources = map[string]Source{
	"GSI.std": {
		URL:         "https://cyberjapandata.gsi.go.jp/xyz/std/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: gsiAttribution,
	},
	"GSI.pale": {
		URL:         "https://cyberjapandata.gsi.go.jp/xyz/pale/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: gsiAttribution,
	},
	"GSI.seamlessphoto": {
		URL:         "https://cyberjapandata.gsi.go.jp/xyz/seamlessphoto/{z}/{x}/{y}.jpg",
		Format:      "jpg",
		Attribution: gsiAttribution,
	},
	"osm-bright": {
		URL:         "https://tile.openstreetmap.jp/styles/osm-bright/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: osmAttribution,
	},
	"osm-bright-ja": {
		URL:         "https://tile.openstreetmap.jp/styles/osm-bright-ja/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: osmAttribution,
	},
	"maptiler-basic-en": {
		URL:         "https://tile.openstreetmap.jp/styles/maptiler-basic-en/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: osmAttribution,
	},
	"maptiler-basic-ja": {
		URL:         "https://tile.openstreetmap.jp/styles/maptiler-basic-ja/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: osmAttribution,
	},
	"maptiler-toner-en": {
		URL:         "https://tile.openstreetmap.jp/styles/maptiler-toner-en/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: osmAttribution,
	},
	"maptiler-toner-ja": {
		URL:         "https://tile.openstreetmap.jp/styles/maptiler-toner-ja/{z}/{x}/{y}.png",
		Format:      "png",
		Attribution: osmAttribution,
	},
}

// LookupSource returns the preset registered under name.
func LookupSource(name string) (Source, error) {
	src, ok := Sources[name]
	if !ok {
		return Source{}, fmt.Errorf("unknown tile source %q (known: %v)", name, SourceNames())
	}
	src.Name = name
	return src, nil
}

// SourceNames returns the preset names in sorted order.
func SourceNames() []string {
	names := make([]string, 0, len(Sources))
	for name := range Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceList returns all presets with their names filled in, sorted by name.
func SourceList() []Source {
	out := make([]Source, 0, len(Sources))
	for _, name := range SourceNames() {
		src := Sources[name]
		src.Name = name
		out = append(out, src)
	}
	return out
}
