package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/mapfactory/internal/datasource"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
	"github.com/MeKo-Tech/mapfactory/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve footprints, SVG captures and stitched images over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("cache-dir", "", "Directory for per-source MBTiles tile caches (empty disables caching)")
	serveCmd.Flags().String("cache-control", "public, max-age=86400", "Cache-Control header for proxied tiles")
	serveCmd.Flags().Int("default-zoom", 15, "Zoom level used when a request has none")
	serveCmd.Flags().Int("max-concurrent-stitches", 2, "Max stitch runs at once across all requests")
	serveCmd.Flags().Int("stitch-workers", 1, "Concurrent tile downloads within one stitch run")
	serveCmd.Flags().Duration("stitch-timeout", 5*time.Minute, "Timeout per stitch run")
	serveCmd.Flags().Int("max-tiles", 0, "Reject stitches above this many tiles (0 disables the limit)")
	serveCmd.Flags().Bool("disable-svg", false, "Disable /api/svg (no Overpass queries)")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.cache_dir", "cache-dir")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.default_zoom", "default-zoom")
	mustBind("serve.max_concurrent_stitches", "max-concurrent-stitches")
	mustBind("serve.stitch_workers", "stitch-workers")
	mustBind("serve.stitch_timeout", "stitch-timeout")
	mustBind("serve.max_tiles", "max-tiles")
	mustBind("serve.disable_svg", "disable-svg")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	cacheDir := viper.GetString("serve.cache_dir")

	var vectors *pipeline.Generator
	if !viper.GetBool("serve.disable_svg") {
		client := datasource.NewOverpassClient(viper.GetString("overpass.endpoint"), viper.GetDuration("timeout"))
		if ua := viper.GetString("user_agent"); ua != "" {
			client.UserAgent = ua
		}
		client.Logger = logger
		vectors = pipeline.NewGenerator(client, logger)
	}

	fetchers := pipeline.NewTileFetchers(pipeline.FetcherConfig{
		UserAgent: viper.GetString("user_agent"),
		CacheDir:  cacheDir,
		Timeout:   viper.GetDuration("timeout"),
	}, logger)
	defer func() {
		if err := fetchers.Close(); err != nil {
			logger.Error("Failed to close tile caches", "error", err)
		}
	}()

	cfg := server.Config{
		CacheControl:          viper.GetString("serve.cache_control"),
		DefaultZoom:           viper.GetInt("serve.default_zoom"),
		MaxConcurrentStitches: viper.GetInt("serve.max_concurrent_stitches"),
		StitchWorkers:         viper.GetInt("serve.stitch_workers"),
		StitchTimeout:         viper.GetDuration("serve.stitch_timeout"),
		MaxTiles:              viper.GetInt("serve.max_tiles"),
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(cfg, vectors, fetchers, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("map server listening",
			"addr", addr,
			"cache_dir", cacheDir,
			"svg", vectors != nil,
			"max_concurrent_stitches", cfg.MaxConcurrentStitches,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
