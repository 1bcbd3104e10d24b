// Package prepare turns files on disk into the in-memory buffers the mosaic
// composer works on: the tile-aligned target and the resized tile library.
package prepare

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/nfnt/resize"
	"github.com/spf13/afero"

	"github.com/kiesman99/mosaic/pkg/tile"
)

var (
	// ErrInput marks a missing, unreadable or undecodable input.
	ErrInput = errors.New("invalid input")
	// ErrInvalidConfig marks a zero tile size or scaling factor.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultQuality is the interpolation quality used when none is configured.
const DefaultQuality uint = 3

// Loader reads targets and tile libraries from a filesystem.
type Loader struct {
	Fs            afero.Fs
	Interpolation resize.InterpolationFunction
	// Workers bounds how many tiles are decoded at the same time.
	Workers int
	// ProgressStep is how often (in tiles) progress is logged in verbose mode.
	ProgressStep int
}

// NewLoader returns a loader reading from fs.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{
		Fs:            fs,
		Interpolation: Interpolation(DefaultQuality),
		Workers:       runtime.NumCPU(),
		ProgressStep:  100,
	}
}

// PrepareTarget loads the target from the local filesystem, see
// Loader.PrepareTarget.
func PrepareTarget(path string, scaling int, size tile.Size) (*tile.Image, error) {
	return NewLoader(afero.NewOsFs()).PrepareTarget(path, scaling, size)
}

// PrepareTiles loads a tile library from the local filesystem, see
// Loader.PrepareTiles.
func PrepareTiles(dir string, size tile.Size, verbose bool) (*tile.Set, error) {
	return NewLoader(afero.NewOsFs()).PrepareTiles(dir, size, verbose)
}

// Interpolation returns an interpolation function given a desired quality.
// Higher values interpolate better but take longer; anything above 4
// selects Lanczos3.
func Interpolation(quality uint) resize.InterpolationFunction {
	switch quality {
	case 0:
		return resize.NearestNeighbor
	case 1:
		return resize.Bilinear
	case 2:
		return resize.Bicubic
	case 3:
		return resize.MitchellNetravali
	case 4:
		return resize.Lanczos2
	default:
		return resize.Lanczos3
	}
}

func validateSize(size tile.Size) error {
	if err := size.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
