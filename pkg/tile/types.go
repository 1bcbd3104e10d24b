package tile

import (
	"fmt"
	"image"
)

// Format selects the encoding of the output canvas
type Format int

// Output format constants
const (
	FormatPNG Format = iota
	FormatJPEG
	FormatTIFF
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// Size is a width x height pair shared by tiles and target blocks
type Size struct {
	Width  int
	Height int
}

// Validate reports an error unless both dimensions are strictly positive.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("tile size must be positive, got %dx%d", s.Width, s.Height)
	}
	return nil
}

// Area returns the number of pixels covered by s
func (s Size) Area() int {
	return s.Width * s.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Square returns a Size with equal sides
func Square(side int) Size {
	return Size{Width: side, Height: side}
}

// Image is an owned RGB buffer, three bytes per pixel, rows stored top to
// bottom without padding.
type Image struct {
	Pix    []byte
	Width  int
	Height int
}

// NewImage allocates a black image of the given dimensions
func NewImage(width, height int) *Image {
	return &Image{
		Pix:    make([]byte, width*height*3),
		Width:  width,
		Height: height,
	}
}

// Size returns the image dimensions
func (img *Image) Size() Size {
	return Size{Width: img.Width, Height: img.Height}
}

// Stride is the number of bytes in one row
func (img *Image) Stride() int {
	return img.Width * 3
}

// RGB returns the channel values of the pixel at (x, y)
func (img *Image) RGB(x, y int) (r, g, b uint8) {
	i := y*img.Stride() + x*3
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

// SetRGB sets the pixel at (x, y)
func (img *Image) SetRGB(x, y int, r, g, b uint8) {
	i := y*img.Stride() + x*3
	img.Pix[i] = r
	img.Pix[i+1] = g
	img.Pix[i+2] = b
}

// Fill paints every pixel with the same color
func (img *Image) Fill(r, g, b uint8) {
	for i := 0; i < len(img.Pix); i += 3 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
	}
}

// Clone returns a deep copy
func (img *Image) Clone() *Image {
	out := &Image{
		Pix:    make([]byte, len(img.Pix)),
		Width:  img.Width,
		Height: img.Height,
	}
	copy(out.Pix, img.Pix)
	return out
}

// Extract copies the region of dst's size whose top-left corner is (x, y)
// into dst. The region must lie inside img.
func (img *Image) Extract(x, y int, dst *Image) {
	srcStride := img.Stride()
	dstStride := dst.Stride()
	for row := 0; row < dst.Height; row++ {
		srcIdx := (y+row)*srcStride + x*3
		copy(dst.Pix[row*dstStride:(row+1)*dstStride], img.Pix[srcIdx:srcIdx+dstStride])
	}
}

// Paste copies src into img with its top-left corner at (x, y). The region
// must lie inside img.
func (img *Image) Paste(src *Image, x, y int) {
	dstStride := img.Stride()
	srcStride := src.Stride()
	for row := 0; row < src.Height; row++ {
		dstIdx := (y+row)*dstStride + x*3
		copy(img.Pix[dstIdx:dstIdx+srcStride], src.Pix[row*srcStride:(row+1)*srcStride])
	}
}

// Crop returns a new image holding the top-left width x height pixels.
func (img *Image) Crop(width, height int) *Image {
	if width == img.Width && height == img.Height {
		return img.Clone()
	}
	out := NewImage(width, height)
	img.Extract(0, 0, out)
	return out
}

// NRGBA converts the buffer into an opaque *image.NRGBA for encoding
func (img *Image) NRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for src, dst := 0, 0; src < len(img.Pix); src, dst = src+3, dst+4 {
		out.Pix[dst] = img.Pix[src]
		out.Pix[dst+1] = img.Pix[src+1]
		out.Pix[dst+2] = img.Pix[src+2]
		out.Pix[dst+3] = 255
	}
	return out
}

// Tile is one candidate image of the library together with the file it was
// loaded from.
type Tile struct {
	Name  string
	Image *Image
}

// Set is the ordered tile library. All tiles share Size and the order is
// the one used for tie-breaking during the search.
type Set struct {
	Size  Size
	Tiles []Tile
}

// Len returns the number of tiles
func (s *Set) Len() int {
	return len(s.Tiles)
}

// At returns the image of the i-th tile
func (s *Set) At(i int) *Image {
	return s.Tiles[i].Image
}
