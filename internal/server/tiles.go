package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MeKo-Tech/mapfactory/internal/stitch"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// handleTile proxies a single tile of a named source through the tile cache.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	src, err := tile.LookupSource(chi.URLParam(r, "source"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	coords, ok := parseTileParams(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	fetcher, err := s.fetchers.For(src)
	if err != nil {
		s.log().Error("Failed to open tile cache", "source", src.Name, "error", err)
		http.Error(w, "tile cache unavailable", http.StatusInternalServerError)
		return
	}

	data, err := fetcher.Fetch(r.Context(), stitch.Request{
		URL:    tile.ExpandURL(src.URL, int(coords.Z), coords.Index()),
		Coords: coords,
	})
	if err != nil {
		s.log().Error("Failed to fetch tile", "source", src.Name, "coords", coords.String(), "error", err)
		http.Error(w, "tile not available", http.StatusBadGateway)
		return
	}

	w.Header().Set("Cache-Control", s.cfg.CacheControl)
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if _, err := w.Write(data); err != nil {
		s.log().Error("Failed to write response", "error", err)
	}
}

// parseTileParams reads z, x and "y.ext" path segments. The extension is
// optional and ignored.
func parseTileParams(z, x, name string) (tile.Coords, bool) {
	y := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		y = name[:i]
	}

	zz, err := strconv.ParseUint(z, 10, 32)
	if err != nil || zz > stitch.MaxZoom {
		return tile.Coords{}, false
	}
	xx, err := strconv.ParseUint(x, 10, 32)
	if err != nil {
		return tile.Coords{}, false
	}
	yy, err := strconv.ParseUint(y, 10, 32)
	if err != nil {
		return tile.Coords{}, false
	}

	n := uint64(1) << zz
	if xx >= n || yy >= n {
		return tile.Coords{}, false
	}
	return tile.NewCoords(uint32(zz), uint32(xx), uint32(yy)), true
}
