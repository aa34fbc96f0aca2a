package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mapfactory",
	Short: "Turn a map rectangle into a vector drawing or a stitched tile image",
	Long: `MapFactory captures a rectangular area of the map in two forms.

The svg command queries the Overpass API for the ways inside the area,
groups them by their map feature tags and writes an SVG drawing with one
layer per feature. The stitch command downloads the raster tiles covering the
area at a zoom level and composites them into a single image.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("overpass-endpoint", "", "Overpass API interpreter URL (default https://overpass-api.de/api/interpreter)")
	rootCmd.PersistentFlags().String("user-agent", "", "User-Agent sent to tile servers and the Overpass API")
	rootCmd.PersistentFlags().Duration("timeout", 0, "HTTP timeout per request (0 uses the transport default)")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("verbose", "verbose")
	mustBind("log_format", "log-format")
	mustBind("overpass.endpoint", "overpass-endpoint")
	mustBind("user_agent", "user-agent")
	mustBind("timeout", "timeout")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("MAPFACTORY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
