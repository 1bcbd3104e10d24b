package mosaic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/kiesman99/mosaic/pkg/tile"
)

func writeImage(t *testing.T, fs afero.Fs, path string, img *tile.Image) {
	t.Helper()
	data, err := tile.EncodeBytes(img, tile.FormatPNG)
	if err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func readImage(t *testing.T, fs afero.Fs, path string) *tile.Image {
	t.Helper()
	file, err := fs.Open(path)
	if err != nil {
		t.Fatalf("can't open %s: %v", path, err)
	}
	defer file.Close()
	img, _, err := tile.Decode(file)
	if err != nil {
		t.Fatalf("can't decode %s: %v", path, err)
	}
	return img
}

// setupFixture writes a random target and a library of random tiles of
// varying sizes.
func setupFixture(t *testing.T, seed int64, tiles int) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	rng := rand.New(rand.NewSource(seed))

	writeImage(t, fs, "/in/target.png", randomTarget(rng, 42, 33))
	for i := 0; i < tiles; i++ {
		img := randomTarget(rng, 3+rng.Intn(8), 3+rng.Intn(8))
		writeImage(t, fs, fmt.Sprintf("/tiles/%03d.png", i), img)
	}
	return fs
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ImagePath = "/in/target.png"
	opts.TilesDirectory = "/tiles"
	opts.OutputPath = "/out/mosaic.png"
	opts.Threads = 4
	return opts
}

func TestComputeDeterministic(t *testing.T) {
	for _, removeUsed := range []bool{false, true} {
		t.Run(fmt.Sprintf("remove_used=%v", removeUsed), func(t *testing.T) {
			fs := setupFixture(t, 21, 80)

			var outputs [][]byte
			for i, threads := range []int{1, 8, 8} {
				opts := testOptions()
				opts.RemoveUsed = removeUsed
				opts.Threads = threads
				opts.OutputPath = fmt.Sprintf("/out/run%d.png", i)
				if err := ComputeFS(context.Background(), fs, opts); err != nil {
					t.Fatalf("run %d: unexpected error: %v", i, err)
				}
				data, err := afero.ReadFile(fs, opts.OutputPath)
				if err != nil {
					t.Fatal(err)
				}
				outputs = append(outputs, data)
			}

			for i := 1; i < len(outputs); i++ {
				if !bytes.Equal(outputs[0], outputs[i]) {
					t.Errorf("run %d output differs from run 0", i)
				}
			}
		})
	}
}

func TestComputeOutputDimensions(t *testing.T) {
	fs := setupFixture(t, 4, 10)
	opts := testOptions()
	opts.Scaling = 2

	if err := ComputeFS(context.Background(), fs, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := readImage(t, fs, opts.OutputPath)
	// 42x33 scaled by 2 is 84x66, cropped to multiples of 5.
	if out.Width != 80 || out.Height != 65 {
		t.Errorf("expected 80x65 output, got %dx%d", out.Width, out.Height)
	}
}

func TestComputeReproducesTargetFromItsBlocks(t *testing.T) {
	fs := afero.NewMemMapFs()
	rng := rand.New(rand.NewSource(8))
	size := tile.Square(5)
	target := randomTarget(rng, 40, 25)
	writeImage(t, fs, "/in/target.png", target)

	blocks := Blocks(target.Size(), size)
	order := rng.Perm(len(blocks))
	for i, blk := range blocks {
		img := tile.NewImage(size.Width, size.Height)
		target.Extract(blk.X, blk.Y, img)
		writeImage(t, fs, fmt.Sprintf("/tiles/tile%03d.png", order[i]), img)
	}

	opts := testOptions()
	opts.RemoveUsed = true
	opts.SIMD = true
	opts.Threads = 6
	if err := ComputeFS(context.Background(), fs, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := readImage(t, fs, opts.OutputPath)
	if !bytes.Equal(out.Pix, target.Pix) {
		t.Error("mosaic does not reproduce the target")
	}
}

func TestComputeWritesRequestedFormat(t *testing.T) {
	fs := setupFixture(t, 6, 5)
	opts := testOptions()
	opts.OutputPath = "/out/mosaic.tiff"

	if err := ComputeFS(context.Background(), fs, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, format := decodeFormat(t, fs, opts.OutputPath)
	if format != "tiff" {
		t.Errorf("expected tiff output, got %s", format)
	}

	opts.OutputPath = "/out/mosaic.out"
	opts.Format = "png"
	if err := ComputeFS(context.Background(), fs, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := afero.ReadFile(fs, opts.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("expected png output: %v", err)
	}
}

func decodeFormat(t *testing.T, fs afero.Fs, path string) (*tile.Image, string) {
	t.Helper()
	file, err := fs.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	img, format, err := tile.Decode(file)
	if err != nil {
		t.Fatal(err)
	}
	return img, format
}

func TestComputeErrors(t *testing.T) {
	tests := []struct {
		name   string
		tiles  int
		modify func(*Options)
		fs     func(afero.Fs) afero.Fs
		stage  Stage
		err    error
	}{
		{
			name:   "zero tile size",
			tiles:  3,
			modify: func(o *Options) { o.TileSize = 0 },
			stage:  StageConfigure,
			err:    ErrInvalidConfig,
		},
		{
			name:   "negative thread count",
			tiles:  3,
			modify: func(o *Options) { o.Threads = -1 },
			stage:  StageConfigure,
			err:    ErrInvalidConfig,
		},
		{
			name:   "unknown format",
			tiles:  3,
			modify: func(o *Options) { o.Format = "xcf" },
			stage:  StageConfigure,
			err:    ErrInvalidConfig,
		},
		{
			name:   "missing target",
			tiles:  3,
			modify: func(o *Options) { o.ImagePath = "/in/missing.png" },
			stage:  StageLoadTarget,
			err:    ErrInput,
		},
		{
			name:   "target smaller than a tile",
			tiles:  3,
			modify: func(o *Options) { o.TileSize = 50 },
			stage:  StageLoadTarget,
			err:    ErrInvalidConfig,
		},
		{
			name:   "missing tile directory",
			tiles:  3,
			modify: func(o *Options) { o.TilesDirectory = "/nope" },
			stage:  StageLoadTiles,
			err:    ErrInput,
		},
		{
			name:  "empty tile directory",
			tiles: 0,
			fs: func(fs afero.Fs) afero.Fs {
				fs.MkdirAll("/tiles", 0o755)
				return fs
			},
			stage: StageCompose,
			err:   ErrNoTiles,
		},
		{
			name:   "not enough tiles without reuse",
			tiles:  3,
			modify: func(o *Options) { o.RemoveUsed = true },
			stage:  StageCompose,
			err:    ErrTilesExhausted,
		},
		{
			name:  "read only output",
			tiles: 3,
			fs: func(fs afero.Fs) afero.Fs {
				return afero.NewReadOnlyFs(fs)
			},
			stage: StageWriteOutput,
			err:   ErrOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := setupFixture(t, 1, tt.tiles)
			if tt.fs != nil {
				fs = tt.fs(fs)
			}
			opts := testOptions()
			if tt.modify != nil {
				tt.modify(&opts)
			}

			err := ComputeFS(context.Background(), fs, opts)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("expected a *StageError, got %T", err)
			}
			if stageErr.Stage != tt.stage {
				t.Errorf("expected stage %q, got %q", tt.stage, stageErr.Stage)
			}
		})
	}
}

func TestComputeSkipsBrokenTiles(t *testing.T) {
	fs := setupFixture(t, 2, 4)
	afero.WriteFile(fs, "/tiles/broken.png", []byte("not an image"), 0o644)
	afero.WriteFile(fs, "/tiles/readme.txt", []byte("hello"), 0o644)

	opts := testOptions()
	if err := ComputeFS(context.Background(), fs, opts); err != nil {
		t.Fatalf("broken tiles should be skipped, got %v", err)
	}
	if ok, _ := afero.Exists(fs, filepath.Clean(opts.OutputPath)); !ok {
		t.Error("expected output to be written")
	}
}

func TestComputeZeroThreadsUsesDefault(t *testing.T) {
	fs := setupFixture(t, 12, 10)
	opts := testOptions()
	opts.Threads = 0

	if err := ComputeFS(context.Background(), fs, opts); err != nil {
		t.Fatalf("zero threads should fall back to the default, got %v", err)
	}
}
