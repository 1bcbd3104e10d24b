package prepare

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// PrepareTiles loads every image file in dir and stretches it to exactly
// size. The size is checked before the filesystem is touched.
//
// Tiles are ordered by file name; this order decides ties during the
// search. Files that cannot be decoded are skipped and reported in a single
// warning. An empty result is not an error here. verbose only enables
// progress logging.
func (l *Loader) PrepareTiles(dir string, size tile.Size, verbose bool) (*tile.Set, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(l.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: can't read tile directory %s: %v", ErrInput, dir, err)
	}

	paths := imagePaths(dir, infos)

	progress := ProgressIgnore
	if verbose {
		progress = LoggerProgressFunc("Loading tiles", len(paths), l.ProgressStep)
	}

	var (
		images = make([]*tile.Image, len(paths))
		errs   = make([]error, len(paths))
		done   atomic.Int64
	)

	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for i, path := range paths {
		p.Go(func() {
			images[i], errs[i] = l.loadTile(path, size)
			progress(int(done.Add(1)))
		})
	}
	p.Wait()

	set := &tile.Set{Size: size, Tiles: make([]tile.Tile, 0, len(paths))}
	var skipped error
	for i, path := range paths {
		if errs[i] != nil {
			skipped = multierr.Append(skipped, errs[i])
			continue
		}
		set.Tiles = append(set.Tiles, tile.Tile{Name: path, Image: images[i]})
	}

	if skipped != nil {
		log.WithFields(log.Fields{
			"dir":     dir,
			"skipped": len(multierr.Errors(skipped)),
		}).WithError(skipped).Warn("Some tiles could not be loaded")
	}
	log.WithFields(log.Fields{
		"dir":   dir,
		"tiles": set.Len(),
		"size":  size,
	}).Debug("Tile library loaded")

	return set, nil
}

// imagePaths keeps regular files with a supported image extension, in the
// (name sorted) order of infos.
func imagePaths(dir string, infos []os.FileInfo) []string {
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !tile.SupportedExtension(filepath.Ext(info.Name())) {
			continue
		}
		paths = append(paths, filepath.Join(dir, info.Name()))
	}
	return paths
}

func (l *Loader) loadTile(path string, size tile.Size) (*tile.Image, error) {
	file, err := l.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open tile %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := tile.DecodeImage(file)
	if err != nil {
		return nil, fmt.Errorf("can't decode tile %s: %w", path, err)
	}
	return tile.FromImage(l.resizeTo(img, size)), nil
}

// resizeTo stretches img to size, ignoring the aspect ratio. Alpha is
// dropped before resizing. Images that already have the right size are
// returned unchanged.
func (l *Loader) resizeTo(img image.Image, size tile.Size) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == size.Width && bounds.Dy() == size.Height {
		return img
	}
	return resize.Resize(uint(size.Width), uint(size.Height), opaque(img), l.Interpolation)
}
