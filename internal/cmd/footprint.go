package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/mapfactory/internal/stitch"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

var footprintCmd = &cobra.Command{
	Use:   "footprint",
	Short: "Show the tiles covering an area at a zoom level",
	Long: `Print the tile range, the sub-tile offset of the north-west corner and
the size of an area without downloading anything.`,
	RunE: runFootprint,
}

func init() {
	rootCmd.AddCommand(footprintCmd)

	footprintCmd.Flags().String("bounds", "", "Area as south,west,north,east")
	footprintCmd.Flags().String("corners", "", "Area as two opposite corners lat1,lon1,lat2,lon2")
	footprintCmd.Flags().IntP("zoom", "z", 15, "Zoom level")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, footprintCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("footprint.bounds", "bounds")
	mustBind("footprint.corners", "corners")
	mustBind("footprint.zoom", "zoom")
}

func runFootprint(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	b, err := parseArea(viper.GetString("footprint.bounds"), viper.GetString("footprint.corners"))
	if err != nil {
		return err
	}
	zoom := viper.GetInt("footprint.zoom")
	if zoom < 0 || zoom > stitch.MaxZoom {
		return fmt.Errorf("zoom %d outside [0, %d]", zoom, stitch.MaxZoom)
	}
	if err := tile.CheckLatitudes(b); err != nil {
		return err
	}

	fp := tile.FootprintOf(b, zoom)
	off := tile.SubTileOffset(b.North, b.West, zoom)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "bounds   %s\n", b.QueryString())
	fmt.Fprintf(out, "zoom     %d\n", zoom)
	fmt.Fprintf(out, "tiles    %s .. %s (%dx%d = %d)\n",
		fp.Start(), tile.Index{X: fp.EndX, Y: fp.EndY}, fp.Width(), fp.Height(), fp.Count())
	fmt.Fprintf(out, "offset   %.4f,%.4f\n", off.X, off.Y)
	fmt.Fprintf(out, "area     %.3f km2\n", b.AreaSquareMeters()/1e6)

	if fp.IsLarge() {
		logger.Warn("Stitching this area needs many tiles", "tiles", fp.Count(), "threshold", tile.LargeRequestThreshold)
	}
	if b.IsLarge() {
		logger.Warn("Area is large for an Overpass query", "area_km2", b.AreaSquareMeters()/1e6)
	}
	return nil
}
