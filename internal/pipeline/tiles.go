package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/mapfactory/internal/mbtiles"
	"github.com/MeKo-Tech/mapfactory/internal/stitch"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// FetcherConfig configures tile transports.
type FetcherConfig struct {
	UserAgent string
	// CacheDir holds one MBTiles file per named source. Empty disables caching.
	CacheDir string
	Timeout  time.Duration
}

// TileFetchers hands out fetchers per tile source and owns their caches.
type TileFetchers struct {
	http   *stitch.HTTPFetcher
	logger *slog.Logger
	caches map[string]*mbtiles.Store
	cfg    FetcherConfig
	mu     sync.Mutex
}

// NewTileFetchers creates the shared HTTP transport.
func NewTileFetchers(cfg FetcherConfig, logger *slog.Logger) *TileFetchers {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hf := stitch.NewHTTPFetcher(timeout)
	if cfg.UserAgent != "" {
		hf.UserAgent = cfg.UserAgent
	}
	hf.Logger = logger

	return &TileFetchers{
		http:   hf,
		logger: logger,
		caches: make(map[string]*mbtiles.Store),
		cfg:    cfg,
	}
}

// ResolveSource picks the tile source for a request. A template wins over a
// source name; with neither, tile.DefaultSource is used. Ad-hoc templates get
// an empty name and are never cached.
func ResolveSource(name, template string) (tile.Source, error) {
	if template != "" {
		if err := tile.ValidateTemplate(template); err != nil {
			return tile.Source{}, err
		}
		return tile.Source{URL: template}, nil
	}
	if name == "" {
		name = tile.DefaultSource
	}
	return tile.LookupSource(name)
}

// For returns the fetcher for src, backed by its cache when caching is on.
func (t *TileFetchers) For(src tile.Source) (stitch.Fetcher, error) {
	if t.cfg.CacheDir == "" || src.Name == "" {
		return t.http, nil
	}
	store, err := t.Cache(src)
	if err != nil {
		return nil, err
	}
	return &stitch.CachingFetcher{Next: t.http, Cache: store, Logger: t.logger}, nil
}

// Cache opens (once) the cache file of a named source.
func (t *TileFetchers) Cache(src tile.Source) (*mbtiles.Store, error) {
	if t.cfg.CacheDir == "" {
		return nil, errors.New("tile cache is disabled")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.caches[src.Name]; ok {
		return s, nil
	}

	path := CachePath(t.cfg.CacheDir, src.Name)
	s, err := mbtiles.Open(path, mbtiles.Metadata{
		Name:        src.Name,
		Format:      src.Format,
		Attribution: src.Attribution,
		Description: src.URL,
		Type:        "baselayer",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tile cache for %s: %w", src.Name, err)
	}
	t.caches[src.Name] = s
	return s, nil
}

// CachePath is the MBTiles file used for a source name.
func CachePath(dir, name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(dir, safe+".mbtiles")
}

// Close flushes and closes every opened cache.
func (t *TileFetchers) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for name, s := range t.caches {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(t.caches, name)
	}
	return errors.Join(errs...)
}
