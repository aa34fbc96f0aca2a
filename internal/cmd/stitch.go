package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
	"github.com/MeKo-Tech/mapfactory/internal/stitch"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
	"github.com/MeKo-Tech/mapfactory/internal/worker"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Download the tiles covering an area and composite them into one image",
	Long: `Download every map tile covering the area at the given zoom level and
composite them into a single image. The image covers whole tiles; the pixel
offset of the north-west corner is logged, or use --crop to cut the image to
the exact area.`,
	RunE: runStitch,
}

func init() {
	rootCmd.AddCommand(stitchCmd)

	stitchCmd.Flags().String("bounds", "", "Area as south,west,north,east")
	stitchCmd.Flags().String("corners", "", "Area as two opposite corners lat1,lon1,lat2,lon2")
	stitchCmd.Flags().IntP("zoom", "z", 15, "Zoom level")
	stitchCmd.Flags().String("source", tile.DefaultSource, "Tile source preset (see 'mapfactory stitch --list-sources')")
	stitchCmd.Flags().String("template", "", "Tile URL template with {z}, {x} and {y}; overrides --source")
	stitchCmd.Flags().Bool("list-sources", false, "Print the tile source presets and exit")
	stitchCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default map-factory_<bounds>.<format>)")
	stitchCmd.Flags().String("format", "png", "Output format (png, jpeg)")
	stitchCmd.Flags().Float64("quality", stitch.DefaultJPEGQuality, "JPEG quality in (0, 1]")
	stitchCmd.Flags().Bool("crop", false, "Crop the image to the exact area")
	stitchCmd.Flags().IntP("workers", "w", 1, "Number of concurrent tile downloads")
	stitchCmd.Flags().String("cache-dir", "", "Directory for per-source MBTiles tile caches (empty disables caching)")
	stitchCmd.Flags().Bool("progress", true, "Show a progress bar while downloading")
	stitchCmd.Flags().Bool("yes", false, "Proceed with more than 100 tiles")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, stitchCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("stitch.bounds", "bounds")
	mustBind("stitch.corners", "corners")
	mustBind("stitch.zoom", "zoom")
	mustBind("stitch.source", "source")
	mustBind("stitch.template", "template")
	mustBind("stitch.list_sources", "list-sources")
	mustBind("stitch.output", "output")
	mustBind("stitch.format", "format")
	mustBind("stitch.quality", "quality")
	mustBind("stitch.crop", "crop")
	mustBind("stitch.workers", "workers")
	mustBind("stitch.cache_dir", "cache-dir")
	mustBind("stitch.progress", "progress")
	mustBind("stitch.yes", "yes")
}

func runStitch(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	if viper.GetBool("stitch.list_sources") {
		return listSources(cmd.OutOrStdout())
	}

	b, err := parseArea(viper.GetString("stitch.bounds"), viper.GetString("stitch.corners"))
	if err != nil {
		return err
	}
	src, err := pipeline.ResolveSource(viper.GetString("stitch.source"), viper.GetString("stitch.template"))
	if err != nil {
		return err
	}
	format, err := stitch.ParseFormat(viper.GetString("stitch.format"))
	if err != nil {
		return err
	}

	params := stitch.Params{Template: src.URL, Bounds: b, Zoom: viper.GetInt("stitch.zoom")}
	if err := params.Validate(); err != nil {
		return err
	}
	fp := params.Footprint()
	if err := confirmLarge(fp.IsLarge(), viper.GetBool("stitch.yes"),
		fmt.Sprintf("%d tiles exceed %d", fp.Count(), tile.LargeRequestThreshold)); err != nil {
		return err
	}

	fetchers := pipeline.NewTileFetchers(pipeline.FetcherConfig{
		UserAgent: viper.GetString("user_agent"),
		CacheDir:  viper.GetString("stitch.cache_dir"),
		Timeout:   viper.GetDuration("timeout"),
	}, logger)
	defer func() {
		if err := fetchers.Close(); err != nil {
			logger.Error("Failed to close tile caches", "error", err)
		}
	}()
	fetcher, err := fetchers.For(src)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting stitch",
		"source", src.Name,
		"zoom", params.Zoom,
		"tiles", fp.String(),
		"workers", viper.GetInt("stitch.workers"),
	)

	progress := worker.NewProgress(fp.Count(), "tiles", viper.GetBool("stitch.progress"))
	session := stitch.NewSession(ctx, stitch.New(stitch.Config{
		Fetcher: fetcher,
		Logger:  logger,
		Workers: viper.GetInt("stitch.workers"),
	}), stitch.Observers{
		OnStateChanged: func(s stitch.State) {
			logger.Debug("Stitch state", "state", s.String())
			progress.SetPhase(s.String())
		},
		OnProgress: progress.Loaded,
	})

	res, err := session.Run(ctx, params)
	progress.Done()
	if err != nil {
		return fmt.Errorf("stitch failed: %w", err)
	}
	logger.Info(progress.Summary())

	var img image.Image = res.Image
	if viper.GetBool("stitch.crop") {
		cropped, err := res.Crop(b)
		if err != nil {
			return err
		}
		img = cropped
	}

	quality := viper.GetFloat64("stitch.quality")
	write := func(w io.Writer) error { return stitch.Encode(w, img, format, quality) }

	output := viper.GetString("stitch.output")
	if output == "-" {
		return write(cmd.OutOrStdout())
	}
	if output == "" {
		output = b.FileStem("") + "." + format.Ext()
	}
	if err := pipeline.WriteFile(output, func(f *os.File) error { return write(f) }); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	off := res.PixelOffset()
	logger.Info("Image written",
		"path", output,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
		"offset_x", off.X,
		"offset_y", off.Y,
		"cropped", viper.GetBool("stitch.crop"),
	)
	return nil
}

func listSources(w io.Writer) error {
	for _, src := range tile.SourceList() {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", src.Name, src.URL); err != nil {
			return err
		}
	}
	return nil
}
