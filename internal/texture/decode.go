// Package texture loads textures for materials. Files are decoded by a
// pool of worker goroutines under a memory budget; GPU textures are
// created on the frame thread by Loader.Poll.
package texture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func isTGA(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".tga")
}

// DecodeConfig returns the dimensions of an encoded image.
func DecodeConfig(path string, data []byte) (image.Config, error) {
	if isTGA(path) {
		return decodeTGAConfig(data)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("texture: %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Decode decodes TGA, PNG, JPEG, GIF, BMP, TIFF or WebP data into RGBA.
// The format is picked by extension for TGA and by content otherwise.
func Decode(path string, data []byte) (*image.RGBA, error) {
	if isTGA(path) {
		return DecodeTGA(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("texture: %s: %w", filepath.Base(path), err)
	}
	return ToRGBA(img), nil
}

// ToRGBA converts any image to *image.RGBA with its origin at 0,0.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
