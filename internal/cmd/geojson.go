package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/mapfactory/internal/datasource"
	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/geojson"
	"github.com/MeKo-Tech/mapfactory/internal/layer"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
)

var geojsonCmd = &cobra.Command{
	Use:   "geojson",
	Short: "Export the classified OSM ways of an area as GeoJSON",
	Long: `Fetch the ways inside the area with their geometry, classify them into
feature layers and write a GeoJSON feature collection. Every feature carries
its OSM tags plus "osm_id" and "layer" properties.`,
	RunE: runGeoJSON,
}

func init() {
	rootCmd.AddCommand(geojsonCmd)

	geojsonCmd.Flags().String("bounds", "", "Area as south,west,north,east")
	geojsonCmd.Flags().String("corners", "", "Area as two opposite corners lat1,lon1,lat2,lon2")
	geojsonCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default map-factory_<bounds>.geojson)")
	geojsonCmd.Flags().String("input", "", "Read OSM XML from this file instead of the Overpass API")
	geojsonCmd.Flags().StringSlice("feature-keys", nil, "Tag keys that form layers (default: the OSM map feature keys)")
	geojsonCmd.Flags().Bool("yes", false, "Proceed with areas above 10 km2")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, geojsonCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("geojson.bounds", "bounds")
	mustBind("geojson.corners", "corners")
	mustBind("geojson.output", "output")
	mustBind("geojson.input", "input")
	mustBind("geojson.feature_keys", "feature-keys")
	mustBind("geojson.yes", "yes")
}

func runGeoJSON(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	b, err := parseArea(viper.GetString("geojson.bounds"), viper.GetString("geojson.corners"))
	if err != nil {
		return err
	}

	elements, geometry, err := loadWays(cmd.Context(), b, viper.GetString("geojson.input"))
	if err != nil {
		return err
	}

	keys := viper.GetStringSlice("geojson.feature_keys")
	if len(keys) == 0 {
		keys = layer.DefaultFeatureKeys
	}
	tree := layer.Classify(elements, keys)
	fc := geojson.FromTree(tree, geometry)
	logger.Info("Classified ways", "layers", geojson.LayerSummary(fc))

	data, err := geojson.ToBytes(tree, geometry)
	if err != nil {
		return err
	}

	output := viper.GetString("geojson.output")
	if output == "-" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if output == "" {
		output = b.FileStem("") + ".geojson"
	}
	if err := pipeline.WriteFile(output, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	logger.Info("GeoJSON written", "path", output, "features", len(fc.Features))
	return nil
}

// loadWays reads the ways from an OSM XML file when input is set and from
// the Overpass JSON API otherwise.
func loadWays(ctx context.Context, b geo.Bounds, input string) ([]layer.Element, geojson.GeometryFunc, error) {
	if input != "" {
		doc, err := fileSource(input).FetchDocument(ctx, b)
		if err != nil {
			return nil, nil, err
		}
		return doc.Elements(), doc.Geometry, nil
	}

	if err := confirmLarge(b.IsLarge(), viper.GetBool("geojson.yes"),
		fmt.Sprintf("area of %.1f km2 exceeds 10 km2", b.AreaSquareMeters()/1e6)); err != nil {
		return nil, nil, err
	}

	var httpClient *http.Client
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}
	ds := datasource.NewOverpassDataSource(viper.GetString("overpass.endpoint"), httpClient).WithLogger(logger)
	set, err := ds.FetchWays(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return set.Elements, set.GeometryOf, nil
}
