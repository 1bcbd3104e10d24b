package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/mosaic/internal/mosaic"
	"github.com/kiesman99/mosaic/internal/prepare"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Rebuild an image as a mosaic of small tile images",
	Long: `mosaic rebuilds a target image out of a library of small tile images.

The target is upscaled by an integer factor, cropped to a whole number of
tiles and cut into blocks. Every block is replaced by the library tile with
the smallest sum of absolute RGB differences. Tiles are stretched to the
tile size when they are loaded.

Examples:
  # Build a mosaic with 5x5 tiles
  mosaic --image target.jpg --tiles ./tiles --output mosaic.png

  # Upscale the target 4 times, use 20x20 tiles and place every tile once
  mosaic -i target.jpg -d ./tiles -o mosaic.png --scaling 4 --tile-size 20 --remove-used

  # Use the vectorised distance on 8 workers
  mosaic -i target.jpg -d ./tiles -o mosaic.tiff --simd --threads 8

  # List distance backends
  mosaic backends

  # Start HTTP server
  mosaic serve --tiles ./tiles --port 8080`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without a target there is nothing to do
		if viper.GetString("image") == "" {
			return cmd.Help()
		}
		return runMosaic(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := mosaic.DefaultOptions()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mosaic.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log progress and debug information")
	rootCmd.PersistentFlags().IntP("threads", "j", runtime.NumCPU(), "number of worker threads")
	rootCmd.PersistentFlags().Uint("resize-quality", prepare.DefaultQuality,
		"tile interpolation: 0 nearest, 1 bilinear, 2 bicubic, 3 mitchell-netravali, 4 lanczos2, 5 lanczos3")

	// Input and output
	rootCmd.Flags().StringP("image", "i", "", "target image (required)")
	rootCmd.Flags().StringP("tiles", "d", "", "directory of tile images (required)")
	rootCmd.Flags().StringP("output", "o", "", "output file (required)")
	rootCmd.Flags().StringP("format", "f", "", "output format png|jpeg|tiff (default: from output extension)")

	// Mosaic options
	rootCmd.Flags().IntP("tile-size", "t", defaults.TileSize, "tile side length in pixels")
	rootCmd.Flags().IntP("scaling", "s", defaults.Scaling, "integer upscale factor of the target")
	rootCmd.Flags().BoolP("remove-used", "r", false, "place every tile at most once")
	rootCmd.Flags().Bool("simd", false, "use the vectorised distance if the CPU supports it")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("threads", rootCmd.PersistentFlags().Lookup("threads"))
	viper.BindPFlag("resize-quality", rootCmd.PersistentFlags().Lookup("resize-quality"))
	for _, name := range []string{"image", "tiles", "output", "format", "tile-size", "scaling", "remove-used", "simd"} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mosaic" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mosaic")
	}

	// MOSAIC_TILE_SIZE, MOSAIC_REMOVE_USED, MOSAIC_SERVER_PORT ...
	viper.SetEnvPrefix("MOSAIC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	configErr := viper.ReadInConfig()

	// verbose may come from the config file, so it is read last
	applyLogLevel()
	if configErr == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// applyLogLevel enables debug logging when verbose is set
func applyLogLevel() {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
}

// loadOptions decodes the flags, environment and config file into Options
func loadOptions() (mosaic.Options, error) {
	opts := mosaic.DefaultOptions()
	if err := viper.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("can't decode configuration: %w", err)
	}
	for _, path := range []*string{&opts.ImagePath, &opts.TilesDirectory, &opts.OutputPath} {
		expanded, err := expandPath(*path)
		if err != nil {
			return opts, err
		}
		*path = expanded
	}
	return opts, nil
}

// expandPath resolves a leading ~ to the home directory
func expandPath(path string) (string, error) {
	res, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("%w: can't expand %s: %v", mosaic.ErrInvalidConfig, path, err)
	}
	return res, nil
}

func runMosaic(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mosaic.Compute(ctx, opts)
}
