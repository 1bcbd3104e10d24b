package prepare

import (
	"fmt"
	"image"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// PrepareTarget decodes the image at path, upscales it by scaling and crops
// it to a whole number of tiles.
func (l *Loader) PrepareTarget(path string, scaling int, size tile.Size) (*tile.Image, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if scaling < 1 {
		return nil, fmt.Errorf("%w: scaling must be at least 1, got %d", ErrInvalidConfig, scaling)
	}

	file, err := l.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open target %s: %v", ErrInput, path, err)
	}
	defer file.Close()

	img, format, err := tile.DecodeImage(file)
	if err != nil {
		return nil, fmt.Errorf("%w: can't decode target %s: %v", ErrInput, path, err)
	}

	log.WithFields(log.Fields{
		"path":   path,
		"format": format,
		"size":   tile.Size{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()},
	}).Debug("Target decoded")

	return FitTarget(img, scaling, size)
}

// TargetSize returns the dimensions of a width x height image after
// upscaling by scaling and cropping to multiples of size. Dimensions are
// floored, never rounded up.
func TargetSize(width, height, scaling int, size tile.Size) tile.Size {
	w := width * scaling
	h := height * scaling
	return tile.Size{
		Width:  w - w%size.Width,
		Height: h - h%size.Height,
	}
}

// FitTarget upscales img by the integer factor scaling (nearest neighbour,
// every source pixel becomes a scaling x scaling square) and discards the
// rows and columns on the right and bottom edges that do not fill a whole
// tile.
func FitTarget(img image.Image, scaling int, size tile.Size) (*tile.Image, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if scaling < 1 {
		return nil, fmt.Errorf("%w: scaling must be at least 1, got %d", ErrInvalidConfig, scaling)
	}

	bounds := img.Bounds()
	out := TargetSize(bounds.Dx(), bounds.Dy(), scaling, size)
	if out.Width == 0 || out.Height == 0 {
		return nil, fmt.Errorf("%w: target of %dx%d scaled by %d is smaller than one %v tile",
			ErrInvalidConfig, bounds.Dx(), bounds.Dy(), scaling, size)
	}

	if scaling == 1 {
		return tile.FromImage(img).Crop(out.Width, out.Height), nil
	}

	// The destination only covers the cropped area; Scale clips the full
	// scaled rectangle against it.
	src := opaque(img)
	dst := image.NewNRGBA(image.Rect(0, 0, out.Width, out.Height))
	scaled := image.Rect(0, 0, bounds.Dx()*scaling, bounds.Dy()*scaling)
	draw.NearestNeighbor.Scale(dst, scaled, src, src.Bounds(), draw.Src, nil)
	return tile.FromImage(dst), nil
}

// opaque copies the raw RGB channels of img into an NRGBA image with full
// alpha, so scaling never premultiplies translucent pixels.
func opaque(img image.Image) *image.NRGBA {
	return tile.FromImage(img).NRGBA()
}
