package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Codec decodes an image and re-encodes it at new dimensions.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	// Encode scales img to width×height and encodes it as mimeType.
	// quality is a 0–1 factor; formats without a quality knob ignore it.
	Encode(img image.Image, width, height int, mimeType string, quality float64) ([]byte, error)
}

// ErrEncodeUnsupported is returned by StdCodec for formats it can
// decode but not write.
var ErrEncodeUnsupported = errors.New("encoding not supported")

// StdCodec implements Codec with the standard image packages and
// golang.org/x/image for resampling and WebP decoding.
type StdCodec struct{}

func (StdCodec) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func (StdCodec) Encode(img image.Image, width, height int, mimeType string, quality float64) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	var scaled image.Image = img
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		scaled = dst
	}

	var buf bytes.Buffer
	switch mimeType {
	case "image/jpeg":
		q := int(math.Round(quality * 100))
		if q < 1 {
			q = 1
		} else if q > 100 {
			q = 100
		}
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
	case "image/png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, scaled); err != nil {
			return nil, err
		}
	case "image/gif":
		if err := gif.Encode(&buf, scaled, nil); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%s: %w", mimeType, ErrEncodeUnsupported)
	}
	return buf.Bytes(), nil
}

// animatedGIF reports whether data is a GIF with more than one frame.
func animatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	return err == nil && len(g.Image) > 1
}

// fitWithin scales w×h down so the longer side is at most limit,
// preserving aspect ratio. It never upscales.
func fitWithin(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		nh := int(math.Round(float64(h) * float64(limit) / float64(w)))
		return limit, max(nh, 1)
	}
	nw := int(math.Round(float64(w) * float64(limit) / float64(h)))
	return max(nw, 1), limit
}
