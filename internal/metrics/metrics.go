// Package metrics holds the Prometheus collectors shared by the stitch
// pipeline and the HTTP service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapfactory",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapfactory",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	// Stitch metrics
	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapfactory",
		Subsystem: "stitch",
		Name:      "tile_fetches_total",
		Help:      "Tile fetches by origin (http, cache) and result",
	}, []string{"origin", "result"})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapfactory",
		Subsystem: "stitch",
		Name:      "tile_fetch_duration_seconds",
		Help:      "Duration of a single tile download",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	StitchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapfactory",
		Subsystem: "stitch",
		Name:      "runs_total",
		Help:      "Completed stitch runs by final state",
	}, []string{"state"})

	StitchTiles = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapfactory",
		Subsystem: "stitch",
		Name:      "tiles_per_run",
		Help:      "Number of tiles in the footprint of a stitch run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// Vector rendering metrics
	OverpassQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapfactory",
		Subsystem: "overpass",
		Name:      "queries_total",
		Help:      "Overpass queries by result",
	}, []string{"result"})

	RenderedWays = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapfactory",
		Subsystem: "svg",
		Name:      "ways_per_drawing",
		Help:      "Number of ways drawn per SVG",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
	})
)

// Middleware records request metrics labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
