// Package server exposes footprint math, vector rendering and tile stitching
// over HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MeKo-Tech/mapfactory/internal/metrics"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
)

// Config configures the HTTP service.
type Config struct {
	CacheControl string
	// DefaultZoom is used by /api/footprint and /api/stitch without zoom.
	DefaultZoom int
	// MaxConcurrentStitches bounds stitch runs across all requests.
	MaxConcurrentStitches int
	// StitchWorkers bounds concurrent tile fetches within one run.
	StitchWorkers int
	StitchTimeout time.Duration
	// MaxTiles rejects stitch requests above this many tiles. Zero disables it.
	MaxTiles int
}

// Server holds the handlers and their shared state.
type Server struct {
	vectors  *pipeline.Generator
	fetchers *pipeline.TileFetchers
	logger   *slog.Logger
	stitches *stitchTracker
	cfg      Config
}

// New creates the server. vectors may be nil, which disables /api/svg.
func New(cfg Config, vectors *pipeline.Generator, fetchers *pipeline.TileFetchers, logger *slog.Logger) *Server {
	if cfg.DefaultZoom == 0 {
		cfg.DefaultZoom = 15
	}
	if cfg.MaxConcurrentStitches <= 0 {
		cfg.MaxConcurrentStitches = 2
	}
	if cfg.StitchTimeout <= 0 {
		cfg.StitchTimeout = 5 * time.Minute
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}

	return &Server{
		cfg:      cfg,
		vectors:  vectors,
		fetchers: fetchers,
		logger:   logger,
		stitches: newStitchTracker(cfg.MaxConcurrentStitches),
	}
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/footprint", s.handleFootprint)
		r.Get("/svg", s.handleSVG)
		r.Get("/stitch", s.handleStitch)
		r.Get("/sources", s.handleSources)
		r.Get("/status", s.handleStatus)
	})

	r.Get("/tiles/{source}/{z}/{x}/{name}", s.handleTile)

	return r
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Offset-X, X-Offset-Y")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log().Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes an error JSON response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
