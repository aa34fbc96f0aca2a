package stitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/mapfactory/internal/mbtiles"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

func TestHTTPFetcher(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		if r.URL.Path == "/15/1/2.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("tile-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	data, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/15/1/2.png", Coords: tile.NewCoords(15, 1, 2)})
	require.NoError(t, err)
	require.Equal(t, "tile-bytes", string(data))
	require.Equal(t, DefaultUserAgent, ua.Load())

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/15/9/9.png"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestHTTPFetcherHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPFetcher(time.Minute).Fetch(ctx, Request{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachingFetcher(t *testing.T) {
	store, err := mbtiles.Open(filepath.Join(t.TempDir(), "GSI.std.mbtiles"), mbtiles.Metadata{Name: "GSI.std", Format: "png"})
	require.NoError(t, err)
	defer store.Close()

	var calls atomic.Int32
	next := FetcherFunc(func(_ context.Context, req Request) ([]byte, error) {
		calls.Add(1)
		return []byte("from " + req.URL), nil
	})
	f := &CachingFetcher{Next: next, Cache: store}

	req := Request{URL: "https://tiles.example/15/29136/12857.png", Coords: tile.NewCoords(15, 29136, 12857)}
	for i := 0; i < 3; i++ {
		data, err := f.Fetch(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, "from "+req.URL, string(data))
	}
	require.Equal(t, int32(1), calls.Load())

	ok, err := store.Has(req.Coords)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachingFetcherDoesNotStoreFailures(t *testing.T) {
	store, err := mbtiles.Open(filepath.Join(t.TempDir(), "cache.mbtiles"), mbtiles.Metadata{Name: "x"})
	require.NoError(t, err)
	defer store.Close()

	f := &CachingFetcher{
		Next: FetcherFunc(func(context.Context, Request) ([]byte, error) {
			return nil, context.DeadlineExceeded
		}),
		Cache: store,
	}
	c := tile.NewCoords(15, 1, 1)
	_, err = f.Fetch(context.Background(), Request{URL: "u", Coords: c})
	require.Error(t, err)

	ok, err := store.Has(c)
	require.NoError(t, err)
	require.False(t, ok)
}
