// Package mosaic assembles a photo-mosaic: it cuts the prepared target into
// tile-sized blocks, finds the closest library tile for each block and
// pastes it into the output canvas.
package mosaic

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/kiesman99/mosaic/internal/metric"
	"github.com/kiesman99/mosaic/internal/prepare"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// Block is a tile-sized region of the target, identified by its row-major
// index.
type Block struct {
	Index int
	X, Y  int
}

// Result contains the composed mosaic
type Result struct {
	Canvas *tile.Image
	// Assignment holds the chosen tile index for every block, row-major.
	Assignment []int
	Cols, Rows int
	Backend    metric.Backend
}

// Composer runs the nearest tile search
type Composer struct {
	Metric     metric.Metric
	Threads    int
	RemoveUsed bool
	// Progress is called with the number of resolved blocks.
	Progress prepare.ProgressFunc
}

// NewComposer creates a composer scoring with m on threads workers.
func NewComposer(m metric.Metric, threads int, removeUsed bool) *Composer {
	return &Composer{
		Metric:     m,
		Threads:    threadCount(threads),
		RemoveUsed: removeUsed,
		Progress:   prepare.ProgressIgnore,
	}
}

// Blocks partitions a target of the given size into row-major blocks.
// The target must be a whole number of tiles in each direction.
func Blocks(target, size tile.Size) []Block {
	cols := target.Width / size.Width
	rows := target.Height / size.Height
	blocks := make([]Block, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			blocks = append(blocks, Block{
				Index: row*cols + col,
				X:     col * size.Width,
				Y:     row * size.Height,
			})
		}
	}
	return blocks
}

// Compose builds the mosaic of target from tiles.
func (c *Composer) Compose(ctx context.Context, target *tile.Image, tiles *tile.Set) (*Result, error) {
	if tiles.Len() == 0 {
		return nil, ErrNoTiles
	}
	size := tiles.Size
	if target.Width%size.Width != 0 || target.Height%size.Height != 0 {
		return nil, fmt.Errorf("%w: target %dx%d is not a multiple of tile size %v",
			ErrInvalidConfig, target.Width, target.Height, size)
	}

	blocks := Blocks(target.Size(), size)
	if c.RemoveUsed && len(blocks) > tiles.Len() {
		return nil, fmt.Errorf("%w: block %d of %d has no tile left, library holds %d tiles",
			ErrTilesExhausted, tiles.Len(), len(blocks), tiles.Len())
	}

	result := &Result{
		Canvas:     tile.NewImage(target.Width, target.Height),
		Assignment: make([]int, len(blocks)),
		Cols:       target.Width / size.Width,
		Rows:       target.Height / size.Height,
		Backend:    c.Metric.Backend(),
	}

	log.WithFields(log.Fields{
		"blocks":      len(blocks),
		"tiles":       tiles.Len(),
		"backend":     c.Metric.Backend(),
		"threads":     c.threads(),
		"remove_used": c.RemoveUsed,
	}).Debug("Composing mosaic")

	var err error
	if c.RemoveUsed {
		err = c.composeUnique(ctx, target, tiles, blocks, result)
	} else {
		err = c.composeShared(ctx, target, tiles, blocks, result)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// composeShared resolves blocks independently on the worker pool. Every
// worker writes only its own block region of the canvas.
func (c *Composer) composeShared(ctx context.Context, target *tile.Image, tiles *tile.Set, blocks []Block, result *Result) error {
	progress := c.progressCounter()

	p := pool.New().WithMaxGoroutines(c.threads()).WithContext(ctx).WithCancelOnError()
	for _, blk := range blocks {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pixels := tile.NewImage(tiles.Size.Width, tiles.Size.Height)
			target.Extract(blk.X, blk.Y, pixels)

			best, _ := c.nearest(pixels, tiles, 0, tiles.Len())
			result.Assignment[blk.Index] = best
			result.Canvas.Paste(tiles.At(best), blk.X, blk.Y)
			progress()
			return nil
		})
	}
	return p.Wait()
}

// composeUnique resolves blocks one after another in row-major order so
// that the assignment does not depend on scheduling. The scoring of a
// single block is split over the worker pool and the winner is claimed
// through the Availability.
func (c *Composer) composeUnique(ctx context.Context, target *tile.Image, tiles *tile.Set, blocks []Block, result *Result) error {
	progress := c.progressCounter()
	avail := NewAvailability(tiles.Len())
	pixels := tile.NewImage(tiles.Size.Width, tiles.Size.Height)

	for _, blk := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		target.Extract(blk.X, blk.Y, pixels)

		cands := c.score(pixels, tiles, avail.Eligible())
		best, err := avail.ClaimBest(cands)
		if err != nil {
			return fmt.Errorf("block %d of %d: %w", blk.Index, len(blocks), err)
		}

		result.Assignment[blk.Index] = best
		result.Canvas.Paste(tiles.At(best), blk.X, blk.Y)
		progress()
	}
	return nil
}

// score computes the distance of pixels to every tile in eligible, keeping
// the order of eligible. Contiguous chunks are scored concurrently.
func (c *Composer) score(pixels *tile.Image, tiles *tile.Set, eligible []int) []Candidate {
	cands := make([]Candidate, len(eligible))
	workers := min(c.threads(), len(eligible))
	if workers <= 1 {
		for i, idx := range eligible {
			cands[i] = Candidate{Index: idx, Score: metric.Between(c.Metric, pixels, tiles.At(idx))}
		}
		return cands
	}

	chunk := (len(eligible) + workers - 1) / workers
	p := pool.New().WithMaxGoroutines(workers)
	for lo := 0; lo < len(eligible); lo += chunk {
		hi := min(lo+chunk, len(eligible))
		p.Go(func() {
			for i := lo; i < hi; i++ {
				idx := eligible[i]
				cands[i] = Candidate{Index: idx, Score: metric.Between(c.Metric, pixels, tiles.At(idx))}
			}
		})
	}
	p.Wait()
	return cands
}

// nearest returns the index in [lo, hi) of the first tile with the lowest
// distance to pixels.
func (c *Composer) nearest(pixels *tile.Image, tiles *tile.Set, lo, hi int) (int, uint64) {
	best := -1
	var bestScore uint64
	for i := lo; i < hi; i++ {
		d := metric.Between(c.Metric, pixels, tiles.At(i))
		if best < 0 || d < bestScore {
			best = i
			bestScore = d
		}
	}
	return best, bestScore
}

func (c *Composer) threads() int {
	return threadCount(c.Threads)
}

func (c *Composer) progressCounter() func() {
	report := c.Progress
	if report == nil {
		report = prepare.ProgressIgnore
	}
	var done atomic.Int64
	return func() {
		report(int(done.Add(1)))
	}
}
