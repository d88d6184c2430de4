// Package imageops is the image capability used by the pipeline: decoding,
// resizing, cropping and pixel access on top of the imaging library.
package imageops

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

var ErrEmptyImage = errors.New("empty image")

// RGB holds 8-bit channel intensities.
type RGB struct {
	R, G, B uint8
}

// Load decodes image bytes, honouring EXIF orientation.
func Load(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// Resize scales img to exactly w×h using bilinear filtering.
func Resize(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Linear)
}

// Crop cuts rect out of img. The result origin is (0,0).
func Crop(img image.Image, rect image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, rect)
}

// ToGrayscale returns a grayscale copy; R, G and B carry the same luma value.
func ToGrayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PixelAt returns the 8-bit color at (x, y) relative to the image bounds origin.
func PixelAt(img image.Image, x, y int) RGB {
	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok {
		i := nrgba.PixOffset(b.Min.X+x, b.Min.Y+y)
		return RGB{R: nrgba.Pix[i], G: nrgba.Pix[i+1], B: nrgba.Pix[i+2]}
	}
	r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8)}
}
