// Package raster converts images into the row-major 1bpp bitmap the printer
// expects. The LX-D01 print head is 384 dots wide (48 bytes per line). Pixels
// are mapped by luminance threshold; dithering is out of scope here and
// should happen upstream if wanted.
package raster

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
)

const (
	// LineWidthDots is the print head width in dots.
	LineWidthDots = 384
	// LineWidthBytes is the packed width of one line.
	LineWidthBytes = LineWidthDots / 8
	// DefaultThreshold is the luminance cutoff below which a pixel prints
	// black (0..255 scale).
	DefaultThreshold = 128
)

var errEmptyImage = errors.New("image has no pixels")

// Options controls the conversion.
type Options struct {
	// Threshold is the luminance cutoff; zero means DefaultThreshold.
	Threshold uint8
	// Invert prints light pixels instead of dark ones.
	Invert bool
}

// Decode reads an encoded image (PNG, JPEG or GIF) from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Convert scales img to the print head width and packs it into row-major
// 1bpp bytes, MSB first, one set bit per black dot. The output length is
// always a multiple of LineWidthBytes.
func Convert(img image.Image, opts Options) ([]byte, error) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, errEmptyImage
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	// Scale height to keep the aspect ratio at the fixed head width.
	outH := srcH * LineWidthDots / srcW
	if outH == 0 {
		outH = 1
	}

	out := make([]byte, outH*LineWidthBytes)
	for y := 0; y < outH; y++ {
		srcY := bounds.Min.Y + y*srcH/outH
		for x := 0; x < LineWidthDots; x++ {
			srcX := bounds.Min.X + x*srcW/LineWidthDots

			dark := luminance(img.At(srcX, srcY)) < uint32(threshold)
			if opts.Invert {
				dark = !dark
			}
			if dark {
				out[y*LineWidthBytes+x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out, nil
}

// luminance reduces a color to its 8-bit brightness using the Rec. 601
// weights. Alpha is ignored; transparent pixels read as black on black
// backgrounds, which callers should flatten beforehand if it matters.
func luminance(c interface{ RGBA() (r, g, b, a uint32) }) uint32 {
	r, g, b, _ := c.RGBA()
	// RGBA components are 16-bit; shift the weighted sum back to 8 bits.
	return (299*r + 587*g + 114*b) / 1000 >> 8
}
