package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
	"github.com/MeKo-Tech/mapfactory/internal/stitch"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// FootprintResponse is the JSON body of /api/footprint.
type FootprintResponse struct {
	Bounds    string      `json:"bounds"`
	Start     tile.Index  `json:"start"`
	End       tile.Index  `json:"end"`
	Offset    tile.Offset `json:"offset"`
	Zoom      int         `json:"zoom"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Tiles     int         `json:"tiles"`
	AreaKM2   float64     `json:"area_km2"`
	LargeArea bool        `json:"large_area"`
	ManyTiles bool        `json:"many_tiles"`
}

func (s *Server) handleFootprint(w http.ResponseWriter, r *http.Request) {
	b, zoom, ok := s.boundsAndZoom(w, r)
	if !ok {
		return
	}
	if err := tile.CheckLatitudes(b); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	fp := tile.FootprintOf(b, zoom)
	s.respondJSON(w, http.StatusOK, FootprintResponse{
		Bounds:    b.QueryString(),
		Zoom:      zoom,
		Start:     fp.Start(),
		End:       tile.Index{X: fp.EndX, Y: fp.EndY},
		Offset:    tile.SubTileOffset(b.North, b.West, zoom),
		Width:     fp.Width(),
		Height:    fp.Height(),
		Tiles:     fp.Count(),
		AreaKM2:   b.AreaSquareMeters() / 1e6,
		LargeArea: b.IsLarge(),
		ManyTiles: fp.IsLarge(),
	})
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	if s.vectors == nil {
		s.respondError(w, http.StatusServiceUnavailable, "vector rendering is not configured")
		return
	}
	b, ok := s.bounds(w, r)
	if !ok {
		return
	}
	if b.IsLarge() && !confirmed(r) {
		s.respondJSON(w, http.StatusConflict, map[string]any{
			"error":    "large area; repeat with confirm=1",
			"area_km2": b.AreaSquareMeters() / 1e6,
		})
		return
	}

	vm, err := s.vectors.Vector(r.Context(), b, pipeline.VectorOptions{})
	if err != nil {
		s.log().Error("vector render failed", "bounds", b.QueryString(), "error", err)
		switch {
		case osmdata.IsMalformed(err):
			s.respondError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, geo.ErrInvalidBounds):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	var buf bytes.Buffer
	if err := vm.Drawing.WriteSVG(&buf); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Disposition", attachment(b.FileStem("")+".svg"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStitch(w http.ResponseWriter, r *http.Request) {
	b, zoom, ok := s.boundsAndZoom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	src, err := pipeline.ResolveSource(q.Get("source"), q.Get("template"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := stitch.ParseFormat(q.Get("format"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	quality, err := parseQuality(q.Get("quality"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := stitch.Params{Bounds: b, Zoom: zoom, Template: src.URL}
	if err := params.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	fp := params.Footprint()
	if s.cfg.MaxTiles > 0 && fp.Count() > s.cfg.MaxTiles {
		s.respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%d tiles exceed the limit of %d", fp.Count(), s.cfg.MaxTiles))
		return
	}
	if fp.IsLarge() && !confirmed(r) {
		s.respondJSON(w, http.StatusConflict, map[string]any{
			"error": "many tiles; repeat with confirm=1",
			"tiles": fp.Count(),
		})
		return
	}

	fetcher, err := s.fetchers.For(src)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StitchTimeout)
	defer cancel()

	release, err := s.stitches.acquire(ctx, fmt.Sprintf("%s@z%d", b.QueryString(), zoom))
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}

	st := stitch.New(stitch.Config{Fetcher: fetcher, Workers: s.cfg.StitchWorkers, Logger: s.logger})
	res, err := st.Stitch(ctx, params, nil)
	release(err)
	if err != nil {
		s.log().Error("stitch failed", "bounds", b.QueryString(), "zoom", zoom, "error", err)
		s.respondError(w, stitchStatus(err), err.Error())
		return
	}

	img := res.Image
	if confirmedFlag(q.Get("crop")) {
		img, err = res.Crop(b)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	var buf bytes.Buffer
	if err := stitch.Encode(&buf, img, format, quality); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	off := res.PixelOffset()
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", attachment(b.FileStem("")+"."+format.Ext()))
	w.Header().Set("X-Offset-X", strconv.Itoa(off.X))
	w.Header().Set("X-Offset-Y", strconv.Itoa(off.Y))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, tile.SourceList())
}

// stitchStatus maps a stitch error to an HTTP status.
func stitchStatus(err error) int {
	var fe *stitch.FetchError
	switch {
	case errors.Is(err, geo.ErrInvalidBounds),
		errors.Is(err, tile.ErrBadTemplate),
		errors.Is(err, stitch.ErrEmptyFootprint):
		return http.StatusBadRequest
	case errors.As(err, &fe):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// bounds parses the bounds query parameter (south,west,north,east).
func (s *Server) bounds(w http.ResponseWriter, r *http.Request) (geo.Bounds, bool) {
	raw := r.URL.Query().Get("bounds")
	if raw == "" {
		s.respondError(w, http.StatusBadRequest, "missing bounds (south,west,north,east)")
		return geo.Bounds{}, false
	}
	b, err := geo.ParseQueryString(raw)
	if err == nil {
		err = b.Validate()
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return geo.Bounds{}, false
	}
	return b, true
}

func (s *Server) boundsAndZoom(w http.ResponseWriter, r *http.Request) (geo.Bounds, int, bool) {
	b, ok := s.bounds(w, r)
	if !ok {
		return b, 0, false
	}
	zoom := s.cfg.DefaultZoom
	if raw := r.URL.Query().Get("zoom"); raw != "" {
		z, err := strconv.Atoi(raw)
		if err != nil || z < 0 || z > stitch.MaxZoom {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid zoom %q", raw))
			return b, 0, false
		}
		zoom = z
	}
	return b, zoom, true
}

func confirmed(r *http.Request) bool {
	return confirmedFlag(r.URL.Query().Get("confirm"))
}

func confirmedFlag(v string) bool {
	ok, err := strconv.ParseBool(v)
	return err == nil && ok
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

// parseQuality reads the JPEG quality parameter. Empty means the encoder
// default.
func parseQuality(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	q, err := strconv.ParseFloat(v, 64)
	if err != nil || q <= 0 || q > 1 {
		return 0, fmt.Errorf("invalid quality %q: want a number in (0, 1]", v)
	}
	return q, nil
}
