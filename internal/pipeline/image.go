package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// jpegQuality for re-encoded slices and gap crops. Extraction does not
// benefit from lossless input.
const jpegQuality = 85

// DecodeBounds returns the pixel dimensions of an encoded image.
func DecodeBounds(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// CropVertical re-encodes the [top, bottom) band of an image as JPEG.
// Bounds are clamped to the image.
func CropVertical(data []byte, top, bottom int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if top < bounds.Min.Y {
		top = bounds.Min.Y
	}
	if bottom > bounds.Max.Y {
		bottom = bounds.Max.Y
	}
	if bottom <= top {
		return nil, fmt.Errorf("empty crop band [%d, %d)", top, bottom)
	}

	region := image.Rect(bounds.Min.X, top, bounds.Max.X, bottom)
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})

	var cropped image.Image
	if ok {
		cropped = sub.SubImage(region)
	} else {
		// Decoders without SubImage (webp) get copied through an RGBA
		// buffer.
		rgba := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
		for y := region.Min.Y; y < region.Max.Y; y++ {
			for x := region.Min.X; x < region.Max.X; x++ {
				rgba.Set(x-region.Min.X, y-region.Min.Y, img.At(x, y))
			}
		}
		cropped = rgba
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
