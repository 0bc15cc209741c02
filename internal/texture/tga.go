package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA image types.
const (
	tgaTypeUncompressed = 2
	tgaTypeRLE          = 10
)

var errTGATruncated = errors.New("texture: TGA data truncated")

type tgaHeader struct {
	idLength    int
	imageType   byte
	width       int
	height      int
	bytesPerPix int
	topToBottom bool
}

func parseTGAHeader(data []byte) (tgaHeader, error) {
	if len(data) < 18 {
		return tgaHeader{}, errTGATruncated
	}
	h := tgaHeader{
		idLength:    int(data[0]),
		imageType:   data[2],
		width:       int(data[12]) | int(data[13])<<8,
		height:      int(data[14]) | int(data[15])<<8,
		bytesPerPix: int(data[16]) / 8,
		// bit 5 of the descriptor stores rows top to bottom
		topToBottom: data[17]&0x20 != 0,
	}
	if data[1] != 0 {
		return h, fmt.Errorf("texture: color-mapped TGA not supported")
	}
	if h.imageType != tgaTypeUncompressed && h.imageType != tgaTypeRLE {
		return h, fmt.Errorf("texture: unsupported TGA type %d", h.imageType)
	}
	if h.bytesPerPix != 3 && h.bytesPerPix != 4 {
		return h, fmt.Errorf("texture: unsupported TGA bit depth %d", data[16])
	}
	if h.width == 0 || h.height == 0 {
		return h, fmt.Errorf("texture: empty TGA image %dx%d", h.width, h.height)
	}
	return h, nil
}

func (h tgaHeader) pixel(src []byte) color.RGBA {
	c := color.RGBA{R: src[2], G: src[1], B: src[0], A: 255}
	if h.bytesPerPix == 4 {
		c.A = src[3]
	}
	return c
}

func (h tgaHeader) set(img *image.RGBA, n int, c color.RGBA) {
	x, y := n%h.width, n/h.width
	if !h.topToBottom {
		y = h.height - 1 - y
	}
	img.SetRGBA(x, y, c)
}

// DecodeTGA decodes an uncompressed or RLE true-color TGA image with 24 or
// 32 bits per pixel.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	h, err := parseTGAHeader(data)
	if err != nil {
		return nil, err
	}
	offset := 18 + h.idLength
	if offset > len(data) {
		return nil, errTGATruncated
	}
	pix := data[offset:]
	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	total := h.width * h.height

	if h.imageType == tgaTypeUncompressed {
		if len(pix) < total*h.bytesPerPix {
			return nil, errTGATruncated
		}
		for n := 0; n < total; n++ {
			h.set(img, n, h.pixel(pix[n*h.bytesPerPix:]))
		}
		return img, nil
	}

	n, i := 0, 0
	for n < total && i < len(pix) {
		packet := pix[i]
		i++
		count := int(packet&0x7F) + 1
		if packet&0x80 != 0 {
			if i+h.bytesPerPix > len(pix) {
				break
			}
			c := h.pixel(pix[i:])
			i += h.bytesPerPix
			for ; count > 0 && n < total; count-- {
				h.set(img, n, c)
				n++
			}
			continue
		}
		for ; count > 0 && n < total && i+h.bytesPerPix <= len(pix); count-- {
			h.set(img, n, h.pixel(pix[i:]))
			i += h.bytesPerPix
			n++
		}
	}
	return img, nil
}

// decodeTGAConfig reads the TGA dimensions without decoding pixels.
func decodeTGAConfig(data []byte) (image.Config, error) {
	h, err := parseTGAHeader(data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBAModel, Width: h.width, Height: h.height}, nil
}
