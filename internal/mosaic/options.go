package mosaic

import (
	"fmt"
	"runtime"

	"github.com/kiesman99/mosaic/internal/prepare"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// Options contains everything needed to build one mosaic. It is read once
// and never changed during composition.
type Options struct {
	ImagePath      string `mapstructure:"image"`
	TilesDirectory string `mapstructure:"tiles"`
	OutputPath     string `mapstructure:"output"`
	TileSize       int    `mapstructure:"tile-size"`
	Scaling        int    `mapstructure:"scaling"`
	RemoveUsed     bool   `mapstructure:"remove-used"`
	Verbose        bool   `mapstructure:"verbose"`
	SIMD           bool   `mapstructure:"simd"`
	// Threads is the number of workers; 0 means one per CPU.
	Threads        int    `mapstructure:"threads"`

	// Format overrides the output format derived from OutputPath.
	Format string `mapstructure:"format"`
	// ResizeQuality selects the interpolation used to stretch tiles (0-5).
	ResizeQuality uint `mapstructure:"resize-quality"`
}

// DefaultOptions returns the defaults used by the command line.
func DefaultOptions() Options {
	return Options{
		TileSize:      5,
		Scaling:       1,
		Threads:       runtime.NumCPU(),
		ResizeQuality: prepare.DefaultQuality,
	}
}

// TileSizeValue returns the square tile size
func (o Options) TileSizeValue() tile.Size {
	return tile.Square(o.TileSize)
}

// OutputFormat returns the explicit format or the one implied by the output
// file extension.
func (o Options) OutputFormat() (tile.Format, error) {
	if o.Format != "" {
		return tile.ParseFormat(o.Format)
	}
	return tile.FormatFromPath(o.OutputPath), nil
}

// Validate checks the options before any file is touched.
func (o Options) Validate() error {
	switch {
	case o.ImagePath == "":
		return fmt.Errorf("%w: target image is required", ErrInvalidConfig)
	case o.TilesDirectory == "":
		return fmt.Errorf("%w: tile directory is required", ErrInvalidConfig)
	case o.OutputPath == "":
		return fmt.Errorf("%w: output path is required", ErrInvalidConfig)
	case o.TileSize <= 0:
		return fmt.Errorf("%w: tile size must be positive, got %d", ErrInvalidConfig, o.TileSize)
	case o.Scaling <= 0:
		return fmt.Errorf("%w: scaling must be positive, got %d", ErrInvalidConfig, o.Scaling)
	case o.Threads < 0:
		return fmt.Errorf("%w: thread count must be positive, got %d", ErrInvalidConfig, o.Threads)
	}
	if _, err := o.OutputFormat(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func threadCount(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
