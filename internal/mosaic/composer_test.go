package mosaic

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/kiesman99/mosaic/internal/metric"
	"github.com/kiesman99/mosaic/pkg/tile"
)

func solidTile(size tile.Size, r, g, b uint8) *tile.Image {
	img := tile.NewImage(size.Width, size.Height)
	img.Fill(r, g, b)
	return img
}

func setOf(size tile.Size, images ...*tile.Image) *tile.Set {
	set := &tile.Set{Size: size}
	for _, img := range images {
		set.Tiles = append(set.Tiles, tile.Tile{Image: img})
	}
	return set
}

func randomSet(rng *rand.Rand, size tile.Size, n int) *tile.Set {
	set := &tile.Set{Size: size}
	for i := 0; i < n; i++ {
		img := tile.NewImage(size.Width, size.Height)
		rng.Read(img.Pix)
		set.Tiles = append(set.Tiles, tile.Tile{Image: img})
	}
	return set
}

func randomTarget(rng *rand.Rand, width, height int) *tile.Image {
	img := tile.NewImage(width, height)
	rng.Read(img.Pix)
	return img
}

func TestBlocks(t *testing.T) {
	blocks := Blocks(tile.Size{Width: 6, Height: 4}, tile.Size{Width: 3, Height: 2})
	want := []Block{{0, 0, 0}, {1, 3, 0}, {2, 0, 2}, {3, 3, 2}}
	if len(blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(blocks))
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Errorf("block %d: expected %+v, got %+v", i, want[i], blocks[i])
		}
	}
}

func TestComposeSelectsNearest(t *testing.T) {
	size := tile.Square(2)
	tiles := setOf(size,
		solidTile(size, 0, 0, 0),
		solidTile(size, 255, 255, 255),
		solidTile(size, 200, 0, 0),
	)

	target := tile.NewImage(6, 2)
	target.Paste(solidTile(size, 250, 240, 250), 0, 0)
	target.Paste(solidTile(size, 10, 5, 0), 2, 0)
	target.Paste(solidTile(size, 180, 20, 10), 4, 0)

	res, err := NewComposer(metric.Scalar, 2, false).Compose(context.Background(), target, tiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 0, 2}
	for i := range want {
		if res.Assignment[i] != want[i] {
			t.Errorf("block %d: expected tile %d, got %d", i, want[i], res.Assignment[i])
		}
	}
	if res.Cols != 3 || res.Rows != 1 {
		t.Errorf("expected 3x1 grid, got %dx%d", res.Cols, res.Rows)
	}
	if r, g, b := res.Canvas.RGB(5, 1); r != 200 || g != 0 || b != 0 {
		t.Errorf("expected last block painted with tile 2, got %d,%d,%d", r, g, b)
	}
}

func TestComposeTieBreakPrefersFirstTile(t *testing.T) {
	size := tile.Square(3)
	tiles := setOf(size,
		solidTile(size, 90, 90, 90),
		solidTile(size, 110, 110, 110),
		solidTile(size, 90, 90, 90),
	)
	target := solidTile(tile.Size{Width: 9, Height: 3}, 100, 100, 100)

	res, err := NewComposer(metric.Scalar, 4, false).Compose(context.Background(), target, tiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, idx := range res.Assignment {
		if idx != 0 {
			t.Errorf("block %d: expected tie to resolve to tile 0, got %d", i, idx)
		}
	}

	res, err = NewComposer(metric.Scalar, 4, true).Compose(context.Background(), target, tiles)
	if err != nil {
		t.Fatalf("unexpected error with remove used: %v", err)
	}
	want := []int{0, 1, 2}
	for i := range want {
		if res.Assignment[i] != want[i] {
			t.Errorf("remove used block %d: expected tile %d, got %d", i, want[i], res.Assignment[i])
		}
	}
}

func TestComposeIndependentOfThreadCount(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	size := tile.Size{Width: 4, Height: 3}
	target := randomTarget(rng, 40, 30)
	tiles := randomSet(rng, size, 150)

	for _, removeUsed := range []bool{false, true} {
		base, err := NewComposer(metric.Scalar, 1, removeUsed).Compose(context.Background(), target, tiles)
		if err != nil {
			t.Fatalf("remove=%v: unexpected error: %v", removeUsed, err)
		}
		for _, threads := range []int{2, 3, 8, 32} {
			res, err := NewComposer(metric.Scalar, threads, removeUsed).Compose(context.Background(), target, tiles)
			if err != nil {
				t.Fatalf("remove=%v threads=%d: unexpected error: %v", removeUsed, threads, err)
			}
			if !bytes.Equal(res.Canvas.Pix, base.Canvas.Pix) {
				t.Errorf("remove=%v threads=%d: canvas differs from single threaded run", removeUsed, threads)
			}
			for i := range base.Assignment {
				if res.Assignment[i] != base.Assignment[i] {
					t.Errorf("remove=%v threads=%d: block %d assigned %d, single thread chose %d",
						removeUsed, threads, i, res.Assignment[i], base.Assignment[i])
					break
				}
			}
		}
	}
}

func TestComposeBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	size := tile.Square(5)
	target := randomTarget(rng, 35, 25)
	tiles := randomSet(rng, size, 60)

	base, err := NewComposer(metric.Scalar, 4, true).Compose(context.Background(), target, tiles)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []metric.Metric{metric.SSE2, metric.NEON} {
		res, err := NewComposer(m, 4, true).Compose(context.Background(), target, tiles)
		if err != nil {
			t.Fatalf("%s: %v", m.Backend(), err)
		}
		if !bytes.Equal(res.Canvas.Pix, base.Canvas.Pix) {
			t.Errorf("%s: canvas differs from scalar result", m.Backend())
		}
		if res.Backend != m.Backend() {
			t.Errorf("expected backend %s in result, got %s", m.Backend(), res.Backend)
		}
	}
}

func TestComposeRemoveUsedNeverRepeatsTiles(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	size := tile.Square(2)
	target := randomTarget(rng, 16, 16)
	tiles := randomSet(rng, size, 64)

	res, err := NewComposer(metric.Scalar, 8, true).Compose(context.Background(), target, tiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[int]bool{}
	for i, idx := range res.Assignment {
		if seen[idx] {
			t.Fatalf("block %d reuses tile %d", i, idx)
		}
		seen[idx] = true
	}
}

func TestComposeRemoveUsedReproducesTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	size := tile.Square(5)
	target := randomTarget(rng, 30, 20)

	// Every tile is an exact crop of the target, shuffled.
	var images []*tile.Image
	for _, blk := range Blocks(target.Size(), size) {
		img := tile.NewImage(size.Width, size.Height)
		target.Extract(blk.X, blk.Y, img)
		images = append(images, img)
	}
	rng.Shuffle(len(images), func(i, j int) { images[i], images[j] = images[j], images[i] })

	res, err := NewComposer(metric.Select(true), 8, true).Compose(context.Background(), target, setOf(size, images...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(res.Canvas.Pix, target.Pix) {
		t.Error("mosaic of exact crops does not reproduce the target")
	}
}

func TestComposeExhaustedTiles(t *testing.T) {
	size := tile.Square(2)
	target := tile.NewImage(4, 4)
	tiles := setOf(size, solidTile(size, 1, 1, 1), solidTile(size, 2, 2, 2), solidTile(size, 3, 3, 3))

	_, err := NewComposer(metric.Scalar, 2, true).Compose(context.Background(), target, tiles)
	if !errors.Is(err, ErrTilesExhausted) {
		t.Errorf("expected ErrTilesExhausted, got %v", err)
	}

	// Reuse allowed: the same library covers any number of blocks.
	if _, err := NewComposer(metric.Scalar, 2, false).Compose(context.Background(), target, tiles); err != nil {
		t.Errorf("unexpected error with reuse allowed: %v", err)
	}
}

func TestComposeNoTiles(t *testing.T) {
	size := tile.Square(2)
	_, err := NewComposer(metric.Scalar, 1, false).Compose(context.Background(), tile.NewImage(4, 4), &tile.Set{Size: size})
	if !errors.Is(err, ErrNoTiles) {
		t.Errorf("expected ErrNoTiles, got %v", err)
	}
}

func TestComposeRejectsMisalignedTarget(t *testing.T) {
	size := tile.Square(3)
	tiles := setOf(size, solidTile(size, 0, 0, 0))
	_, err := NewComposer(metric.Scalar, 1, false).Compose(context.Background(), tile.NewImage(7, 6), tiles)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestComposeCancelled(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	size := tile.Square(2)
	target := randomTarget(rng, 8, 8)
	tiles := randomSet(rng, size, 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, removeUsed := range []bool{false, true} {
		if _, err := NewComposer(metric.Scalar, 2, removeUsed).Compose(ctx, target, tiles); !errors.Is(err, context.Canceled) {
			t.Errorf("remove=%v: expected context.Canceled, got %v", removeUsed, err)
		}
	}
}

func TestComposeReportsProgress(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	size := tile.Square(2)
	target := randomTarget(rng, 8, 6)
	tiles := randomSet(rng, size, 30)

	for _, removeUsed := range []bool{false, true} {
		c := NewComposer(metric.Scalar, 3, removeUsed)
		calls := make(chan int, 100)
		c.Progress = func(num int) { calls <- num }
		if _, err := c.Compose(context.Background(), target, tiles); err != nil {
			t.Fatal(err)
		}
		close(calls)
		highest := 0
		count := 0
		for n := range calls {
			count++
			highest = max(highest, n)
		}
		if count != 12 || highest != 12 {
			t.Errorf("remove=%v: expected 12 progress calls up to 12, got %d calls up to %d", removeUsed, count, highest)
		}
	}
}
