package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

const tsukubaQuery = "36.0802,140.1062,36.0849,140.1175"

const payload = `<osm version="0.6">
  <node id="1" lat="36.0849" lon="140.1062"/>
  <node id="2" lat="36.0802" lon="140.1175"/>
  <way id="100"><nd ref="1"/><nd ref="2"/><tag k="highway" v="primary"/></way>
</osm>`

type staticDocs struct{}

func (staticDocs) FetchDocument(context.Context, geo.Bounds) (*osmdata.Document, error) {
	return osmdata.Parse([]byte(payload))
}

func pngTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 20, 30, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTestServer starts a tile server and returns the router plus the tile
// URL template pointing at it.
func newTestServer(t *testing.T, cfg Config, cacheDir string) (http.Handler, string, *atomic.Int32) {
	t.Helper()
	tileBytes := pngTile(t)
	var hits atomic.Int32
	tiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(tileBytes)
	}))
	t.Cleanup(tiles.Close)

	fetchers := pipeline.NewTileFetchers(pipeline.FetcherConfig{CacheDir: cacheDir}, nil)
	t.Cleanup(func() { _ = fetchers.Close() })

	s := New(cfg, pipeline.NewGenerator(staticDocs{}, nil), fetchers, nil)
	return s.Routes(), tiles.URL + "/{z}/{x}/{y}.png", &hits
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFootprint(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	rec := get(t, h, "/api/footprint?bounds="+tsukubaQuery)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FootprintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 15, resp.Zoom)
	require.Equal(t, tile.Index{X: 29136, Y: 12857}, resp.Start)
	require.Equal(t, tile.Index{X: 29137, Y: 12858}, resp.End)
	require.Equal(t, 4, resp.Tiles)
	require.False(t, resp.ManyTiles)
	require.False(t, resp.LargeArea)
	require.InDelta(t, 0.814, resp.AreaKM2, 0.01)
}

func TestFootprintBadInput(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	for _, target := range []string{
		"/api/footprint",
		"/api/footprint?bounds=1,2,3",
		"/api/footprint?bounds=36.0849,140.1062,36.0802,140.1175",
		"/api/footprint?bounds=" + tsukubaQuery + "&zoom=x",
		"/api/footprint?bounds=" + tsukubaQuery + "&zoom=99",
		"/api/footprint?bounds=80,0,89,10&zoom=4",
	} {
		rec := get(t, h, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSVG(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	rec := get(t, h, "/api/svg?bounds="+tsukubaQuery)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="map-factory_`+tsukubaQuery+`.svg"`, rec.Header().Get("Content-Disposition"))
	require.Contains(t, rec.Body.String(), `<g id="highway"><g id="primary"><g id="100">`)
}

func TestSVGLargeAreaNeedsConfirmation(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	large := "36.0,140.0,36.1,140.1"

	rec := get(t, h, "/api/svg?bounds="+large)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = get(t, h, "/api/svg?bounds="+large+"&confirm=1")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStitch(t *testing.T) {
	h, template, hits := newTestServer(t, Config{}, "")
	rec := get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&template="+url.QueryEscape(template))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Equal(t, "6", rec.Header().Get("X-Offset-X"))
	require.Equal(t, "7", rec.Header().Get("X-Offset-Y"))
	require.Equal(t, int32(4), hits.Load())

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	require.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, color.NRGBAModel.Convert(img.At(15, 15)))
}

func TestStitchCropAndJPEG(t *testing.T) {
	h, template, _ := newTestServer(t, Config{}, "")
	rec := get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&template="+url.QueryEscape(template)+"&crop=1&format=jpg")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), ".jpg")

	img, _, err := image.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestStitchErrors(t *testing.T) {
	h, template, _ := newTestServer(t, Config{MaxTiles: 2}, "")

	rec := get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&template="+url.QueryEscape(template))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	h, template, _ = newTestServer(t, Config{}, "")
	rec = get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&template="+url.QueryEscape(strings.Replace(template, "/{z}", "/missing/{z}", 1)))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&template="+url.QueryEscape("https://x/{z}/{x}.png"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&source=unknown")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&format=jpg&quality=abc&template="+url.QueryEscape(template))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "quality")

	rec = get(t, h, "/api/stitch?bounds="+tsukubaQuery+"&format=jpg&quality=1.5&template="+url.QueryEscape(template))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/stitch?bounds=80,0,89,10&zoom=4&template="+url.QueryEscape(template))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/stitch?bounds=36.0,140.0,36.1,140.1&template="+url.QueryEscape(template))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st StitchStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, int64(1), st.TotalFailed)
	require.Equal(t, 0, st.Active)
	require.Empty(t, st.Current)
}

func TestSources(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	rec := get(t, h, "/api/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	var sources []tile.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, len(tile.Sources))
	require.Equal(t, tile.SourceNames()[0], sources[0].Name)
}

func TestTileRouteRejectsBadPaths(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, t.TempDir())

	require.Equal(t, http.StatusNotFound, get(t, h, "/tiles/unknown/15/1/2.png").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/tiles/GSI.std/15/x/2.png").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/tiles/GSI.std/1/5/0.png").Code)
}

func TestParseTileParams(t *testing.T) {
	c, ok := parseTileParams("15", "29136", "12857.png")
	require.True(t, ok)
	require.Equal(t, tile.NewCoords(15, 29136, 12857), c)

	c, ok = parseTileParams("3", "1", "2")
	require.True(t, ok)
	require.Equal(t, tile.NewCoords(3, 1, 2), c)

	_, ok = parseTileParams("3", "8", "0.png")
	require.False(t, ok)
	_, ok = parseTileParams("-1", "0", "0.png")
	require.False(t, ok)
}

func TestMetricsRoute(t *testing.T) {
	h, _, _ := newTestServer(t, Config{}, "")
	_ = get(t, h, "/healthz")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "mapfactory_http_requests_total")
}

func TestStitchTracker(t *testing.T) {
	tr := newStitchTracker(1)
	release, err := tr.acquire(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 1, tr.status().Active)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.acquire(ctx, "b")
	require.ErrorIs(t, err, context.Canceled)

	release(nil)
	release(nil)
	st := tr.status()
	require.Equal(t, 0, st.Active)
	require.Equal(t, int64(1), st.TotalDone)
}
