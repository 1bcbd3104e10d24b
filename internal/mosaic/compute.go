package mosaic

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/mosaic/internal/metric"
	"github.com/kiesman99/mosaic/internal/prepare"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// Compute builds the mosaic described by opts from files on the local
// filesystem and writes it to opts.OutputPath.
func Compute(ctx context.Context, opts Options) error {
	return ComputeFS(ctx, afero.NewOsFs(), opts)
}

// ComputeFS is Compute on an arbitrary filesystem. Errors are returned as
// *StageError naming the step that failed.
func ComputeFS(ctx context.Context, fs afero.Fs, opts Options) error {
	if err := opts.Validate(); err != nil {
		return stageError(StageConfigure, err)
	}
	format, _ := opts.OutputFormat()
	size := opts.TileSizeValue()

	loader := prepare.NewLoader(fs)
	loader.Interpolation = prepare.Interpolation(opts.ResizeQuality)
	loader.Workers = threadCount(opts.Threads)

	var (
		target *tile.Image
		tiles  *tile.Set
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		target, err = loader.PrepareTarget(opts.ImagePath, opts.Scaling, size)
		return stageError(StageLoadTarget, err)
	})
	g.Go(func() error {
		var err error
		tiles, err = loader.PrepareTiles(opts.TilesDirectory, size, opts.Verbose)
		return stageError(StageLoadTiles, err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	composer := NewComposer(metric.Select(opts.SIMD), opts.Threads, opts.RemoveUsed)
	if opts.Verbose {
		blocks := (target.Width / size.Width) * (target.Height / size.Height)
		composer.Progress = prepare.LoggerProgressFunc("Placing tiles", blocks, max(blocks/10, 1))
	}

	result, err := composer.Compose(ctx, target, tiles)
	if err != nil {
		return stageError(StageCompose, err)
	}

	if err := writeCanvas(fs, opts.OutputPath, result.Canvas, format); err != nil {
		return stageError(StageWriteOutput, err)
	}

	log.WithFields(log.Fields{
		"output":  opts.OutputPath,
		"size":    result.Canvas.Size(),
		"blocks":  len(result.Assignment),
		"backend": result.Backend,
	}).Info("Mosaic written")
	return nil
}

func writeCanvas(fs afero.Fs, path string, canvas *tile.Image, format tile.Format) error {
	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutput, err)
	}
	if err := tile.Encode(file, canvas, format); err != nil {
		file.Close()
		return fmt.Errorf("%w: encoding %s: %v", ErrOutput, format, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutput, err)
	}
	return nil
}
