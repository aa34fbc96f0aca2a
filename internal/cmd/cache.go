package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/mapfactory/internal/mbtiles"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
)

var cacheCmd = &cobra.Command{
	Use:   "cache [file.mbtiles...]",
	Short: "Show what the MBTiles tile caches hold",
	Long: `Print the metadata and per-zoom tile counts of tile cache files. Without
arguments every cache in --cache-dir is listed, or only the one of --source.`,
	RunE: runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.Flags().String("cache-dir", "./cache", "Directory holding the tile caches")
	cacheCmd.Flags().String("source", "", "Only show the cache of this tile source")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, cacheCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("cache.dir", "cache-dir")
	mustBind("cache.source", "source")
}

func runCache(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	files := args
	if len(files) == 0 {
		dir := viper.GetString("cache.dir")
		if source := viper.GetString("cache.source"); source != "" {
			files = []string{pipeline.CachePath(dir, source)}
		} else {
			matches, err := filepath.Glob(filepath.Join(dir, "*.mbtiles"))
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", dir, err)
			}
			sort.Strings(matches)
			files = matches
		}
	}
	if len(files) == 0 {
		logger.Info("No tile caches found", "dir", viper.GetString("cache.dir"))
		return nil
	}

	for _, path := range files {
		if err := describeCache(cmd.OutOrStdout(), path); err != nil {
			return err
		}
	}
	return nil
}

func describeCache(w io.Writer, path string) error {
	store, err := mbtiles.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer store.Close()

	meta, err := store.Metadata()
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  name    %s\n", meta.Name)
	fmt.Fprintf(w, "  format  %s\n", meta.Format)
	if meta.Description != "" {
		fmt.Fprintf(w, "  url     %s\n", meta.Description)
	}
	total := 0
	for _, zc := range stats {
		fmt.Fprintf(w, "  z%-2d     %d tiles\n", zc.Zoom, zc.Tiles)
		total += zc.Tiles
	}
	fmt.Fprintf(w, "  total   %d tiles\n", total)
	return nil
}
