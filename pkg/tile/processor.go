package tile

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used when the canvas is written as JPEG
const JPEGQuality = 95

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8}
)

// SupportedExtension reports whether files with extension ext (".png",
// ".JPG", ...) are considered image files.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	default:
		return false
	}
}

// Decode reads an encoded image and converts it to an RGB buffer.
func Decode(r io.Reader) (*Image, string, error) {
	img, format, err := DecodeImage(r)
	if err != nil {
		return nil, "", err
	}
	return FromImage(img), format, nil
}

// DecodeImage detects the image format and decodes. PNG and JPEG are
// recognised by their magic bytes, everything else goes through the
// registered image decoders.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)

	var (
		img    image.Image
		format string
		err    error
	)
	switch {
	case bytes.HasPrefix(head, pngMagic):
		img, err = png.Decode(br)
		format = "png"
	case bytes.HasPrefix(head, jpegMagic):
		img, err = jpeg.Decode(br)
		format = "jpeg"
	default:
		img, format, err = image.Decode(br)
	}
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// FromImage converts any image.Image into an RGB buffer. Alpha is dropped
// without premultiplication.
func FromImage(img image.Image) *Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := NewImage(width, height)

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := src.Pix[off : off+width*4]
			for x := 0; x < width; x++ {
				idx := (y*width + x) * 3
				if row[x*4+3] == 0xff {
					out.Pix[idx] = row[x*4]
					out.Pix[idx+1] = row[x*4+1]
					out.Pix[idx+2] = row[x*4+2]
					continue
				}
				c := color.NRGBAModel.Convert(src.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				out.Pix[idx] = c.R
				out.Pix[idx+1] = c.G
				out.Pix[idx+2] = c.B
			}
		}
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := src.Pix[off : off+width*4]
			for x := 0; x < width; x++ {
				idx := (y*width + x) * 3
				out.Pix[idx] = row[x*4]
				out.Pix[idx+1] = row[x*4+1]
				out.Pix[idx+2] = row[x*4+2]
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				idx := (y*width + x) * 3
				out.Pix[idx] = c.R
				out.Pix[idx+1] = c.G
				out.Pix[idx+2] = c.B
			}
		}
	}
	return out
}

// ParseFormat maps a format name to a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return FormatPNG, fmt.Errorf("unknown format: %s", name)
	}
}

// FormatFromPath derives the output format from the file extension,
// defaulting to PNG.
func FormatFromPath(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return FormatPNG
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Encode writes img to w in the given format
func Encode(w io.Writer, img *Image, format Format) error {
	out := img.NRGBA()
	switch format {
	case FormatPNG:
		return png.Encode(w, out)
	case FormatJPEG:
		return jpeg.Encode(w, out, &jpeg.Options{Quality: JPEGQuality})
	case FormatTIFF:
		return tiff.Encode(w, out, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported output format %v", format)
	}
}

// EncodeBytes encodes img into memory
func EncodeBytes(img *Image, format Format) ([]byte, error) {
	var output bytes.Buffer
	if err := Encode(&output, img, format); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}
