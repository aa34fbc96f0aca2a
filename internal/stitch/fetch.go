package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/mapfactory/internal/mbtiles"
	"github.com/MeKo-Tech/mapfactory/internal/metrics"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// DefaultUserAgent identifies tile requests to the tile servers.
const DefaultUserAgent = "mapfactory/1.0 (+https://github.com/MeKo-Tech/mapfactory)"

// maxTileBytes caps a single tile response.
const maxTileBytes = 16 << 20

// Request names one tile to fetch.
type Request struct {
	URL    string
	Coords tile.Coords
}

// Fetcher returns the encoded image bytes for one tile.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// HTTPFetcher downloads tiles over HTTP. Timeouts are the client's.
type HTTPFetcher struct {
	Client    *http.Client
	Logger    *slog.Logger
	UserAgent string
}

// NewHTTPFetcher creates a fetcher whose client gives up after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: DefaultUserAgent,
	}
}

func (f *HTTPFetcher) log() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fetch performs a GET on req.URL. Any status other than 200 is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		metrics.TileFetches.WithLabelValues("http", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.TileFetches.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		metrics.TileFetches.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}

	elapsed := time.Since(start)
	metrics.TileFetches.WithLabelValues("http", "ok").Inc()
	metrics.TileFetchDuration.Observe(elapsed.Seconds())
	f.log().Debug("fetched tile", "tile", req.Coords.String(), "bytes", len(data), "elapsed", elapsed)

	return data, nil
}

// TileCache stores encoded tiles by coordinate. *mbtiles.Store satisfies it.
type TileCache interface {
	Get(c tile.Coords) ([]byte, error)
	Put(c tile.Coords, data []byte) error
}

// CachingFetcher answers from Cache when it can and stores what Next fetches.
// Cache read and write failures are logged and otherwise ignored.
type CachingFetcher struct {
	Next   Fetcher
	Cache  TileCache
	Logger *slog.Logger
}

func (f *CachingFetcher) log() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fetch implements Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	data, err := f.Cache.Get(req.Coords)
	switch {
	case err == nil:
		metrics.TileFetches.WithLabelValues("cache", "hit").Inc()
		return data, nil
	case errors.Is(err, mbtiles.ErrTileNotFound):
		metrics.TileFetches.WithLabelValues("cache", "miss").Inc()
	default:
		f.log().Warn("tile cache read failed", "tile", req.Coords.String(), "error", err)
	}

	data, err = f.Next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := f.Cache.Put(req.Coords, data); err != nil {
		f.log().Warn("tile cache write failed", "tile", req.Coords.String(), "error", err)
	}
	return data, nil
}
