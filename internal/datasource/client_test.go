package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
)

var tsukuba = geo.Bounds{North: 36.0849, South: 36.0802, East: 140.1175, West: 140.1062}

func requireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
	if os.Getenv("MAPFACTORY_INTEGRATION") != "1" {
		t.Skip("skipping integration test (set MAPFACTORY_INTEGRATION=1 to enable)")
	}
}

const xmlPayload = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="Overpass API">
  <node id="1" lat="36.0849" lon="140.1062"/>
  <node id="2" lat="36.0802" lon="140.1175"/>
  <way id="10"><nd ref="1"/><nd ref="2"/><tag k="highway" v="primary"/></way>
</osm>`

func TestBuildQueryAll(t *testing.T) {
	require.Equal(t, "way(36.0802,140.1062,36.0849,140.1175);(._;>;);out meta;", BuildQueryAll(tsukuba))
	require.Contains(t, BuildQueryGeometry(tsukuba), "way(36.0802,140.1062,36.0849,140.1175);")
	require.Contains(t, BuildQueryGeometry(tsukuba), "[out:json]")
}

func TestQueryRawPostsForm(t *testing.T) {
	var gotQuery, gotContentType, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotQuery = r.PostForm.Get("data")
		_, _ = w.Write([]byte(xmlPayload))
	}))
	defer srv.Close()

	c := NewOverpassClient(srv.URL, 5*time.Second)
	body, err := c.QueryRaw(context.Background(), BuildQueryAll(tsukuba))
	require.NoError(t, err)
	require.Equal(t, xmlPayload, string(body))
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	require.Equal(t, BuildQueryAll(tsukuba), gotQuery)
}

func TestQueryRawHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOverpassClient(srv.URL, 5*time.Second)
	_, err := c.QueryRaw(context.Background(), "way(0,0,1,1);out;")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "rate limited")
}

func TestFetchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(xmlPayload))
	}))
	defer srv.Close()

	doc, err := NewOverpassClient(srv.URL, 0).FetchDocument(context.Background(), tsukuba)
	require.NoError(t, err)
	require.Equal(t, 1, doc.WayCount())
	require.Equal(t, 2, doc.NodeCount())
}

func TestFetchDocumentMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<osm><way"))
	}))
	defer srv.Close()

	_, err := NewOverpassClient(srv.URL, 0).FetchDocument(context.Background(), tsukuba)
	require.Error(t, err)
	require.True(t, osmdata.IsMalformed(err))
}

func TestFetchDocumentLive(t *testing.T) {
	requireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	doc, err := NewOverpassClient("", 0).FetchDocument(ctx, tsukuba)
	require.NoError(t, err)
	require.Greater(t, doc.WayCount(), 0)
	t.Logf("fetched %d ways, %d nodes", doc.WayCount(), doc.NodeCount())
}
