package cmd

import (
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/mapfactory/internal/datasource"
	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/osmdata"
	"github.com/MeKo-Tech/mapfactory/internal/pipeline"
	"github.com/MeKo-Tech/mapfactory/internal/svgrender"
)

var svgCmd = &cobra.Command{
	Use:   "svg",
	Short: "Render the OSM ways of an area as a layered SVG",
	Long: `Query the Overpass API for every way inside the area, group the ways by
their map feature tags (highway/primary, building/yes, ...) and write an SVG
with one <g> layer per group. Use --input to render a saved OSM XML file
instead of querying Overpass.`,
	RunE: runSVG,
}

func init() {
	rootCmd.AddCommand(svgCmd)

	svgCmd.Flags().String("bounds", "", "Area as south,west,north,east")
	svgCmd.Flags().String("corners", "", "Area as two opposite corners lat1,lon1,lat2,lon2")
	svgCmd.Flags().StringP("output", "o", "", "Output file, - for stdout (default map-factory_<bounds>.<format>)")
	svgCmd.Flags().String("input", "", "Read OSM XML from this file instead of the Overpass API")
	svgCmd.Flags().String("format", "svg", "Output format (svg, png)")
	svgCmd.Flags().Float64("width", svgrender.DefaultDisplayWidth, "Display width of the SVG")
	svgCmd.Flags().Int("raster-width", 2000, "Pixel width of the PNG preview")
	svgCmd.Flags().Float64("stroke-width", 1, "Stroke width of the PNG preview in pixels")
	svgCmd.Flags().String("unresolved", "substitute", "Ways with missing nodes (substitute, skip-point, skip-element)")
	svgCmd.Flags().StringSlice("feature-keys", nil, "Tag keys that form layers (default: the OSM map feature keys)")
	svgCmd.Flags().Bool("yes", false, "Proceed with areas above 10 km2")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, svgCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("svg.bounds", "bounds")
	mustBind("svg.corners", "corners")
	mustBind("svg.output", "output")
	mustBind("svg.input", "input")
	mustBind("svg.format", "format")
	mustBind("svg.width", "width")
	mustBind("svg.raster_width", "raster-width")
	mustBind("svg.stroke_width", "stroke-width")
	mustBind("svg.unresolved", "unresolved")
	mustBind("svg.feature_keys", "feature-keys")
	mustBind("svg.yes", "yes")
}

// fileSource serves a saved OSM XML document for any box.
type fileSource string

func (f fileSource) FetchDocument(_ context.Context, _ geo.Bounds) (*osmdata.Document, error) {
	file, err := os.Open(string(f))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return osmdata.Decode(file)
}

func runSVG(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	b, err := parseArea(viper.GetString("svg.bounds"), viper.GetString("svg.corners"))
	if err != nil {
		return err
	}
	format := strings.ToLower(viper.GetString("svg.format"))
	if format != "svg" && format != "png" {
		return fmt.Errorf("invalid format %q: must be 'svg' or 'png'", format)
	}
	policy, err := svgrender.ParseUnresolvedPolicy(viper.GetString("svg.unresolved"))
	if err != nil {
		return err
	}

	input := viper.GetString("svg.input")
	var docs pipeline.DocumentSource
	if input != "" {
		docs = fileSource(input)
	} else {
		if err := confirmLarge(b.IsLarge(), viper.GetBool("svg.yes"),
			fmt.Sprintf("area of %.1f km2 exceeds 10 km2", b.AreaSquareMeters()/1e6)); err != nil {
			return err
		}
		client := datasource.NewOverpassClient(viper.GetString("overpass.endpoint"), viper.GetDuration("timeout"))
		if ua := viper.GetString("user_agent"); ua != "" {
			client.UserAgent = ua
		}
		client.Logger = logger
		docs = client
	}

	gen := pipeline.NewGenerator(docs, logger)
	vm, err := gen.Vector(cmd.Context(), b, pipeline.VectorOptions{
		FeatureKeys:  viper.GetStringSlice("svg.feature_keys"),
		DisplayWidth: viper.GetFloat64("svg.width"),
		Unresolved:   policy,
	})
	if err != nil {
		return err
	}
	logger.Debug("Layer tree", "groups", vm.Tree.Summary())

	write := func(w io.Writer) error {
		if format == "png" {
			img := vm.Drawing.Rasterize(viper.GetInt("svg.raster_width"), viper.GetFloat64("svg.stroke_width"))
			return png.Encode(w, img)
		}
		return vm.Drawing.WriteSVG(w)
	}

	output := viper.GetString("svg.output")
	if output == "-" {
		return write(cmd.OutOrStdout())
	}
	if output == "" {
		output = b.FileStem("") + "." + format
	}
	if err := pipeline.WriteFile(output, func(f *os.File) error { return write(f) }); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	logger.Info("Map written", "path", output, "ways", vm.Drawing.Stats.Elements)
	return nil
}
