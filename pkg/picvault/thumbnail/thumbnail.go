// Package thumbnail generates fixed-size derived images and runs the queue
// worker that produces them.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Decoders for the supported upload formats.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/picvault/picvault/pkg/picvault"
)

// Default thumbnail bounding box.
const (
	DefaultWidth  = 150
	DefaultHeight = 150

	jpegQuality = 80
)

// Generate decodes an image, scales it into a width x height bounding box
// preserving aspect ratio, and re-encodes it as JPEG regardless of the
// source format. Corrupt or unsupported input yields ErrTransform.
func Generate(r io.Reader, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", picvault.ErrTransform, width, height)
	}

	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", picvault.ErrTransform, err)
	}

	dstW, dstH := fit(src.Bounds().Dx(), src.Bounds().Dy(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode from %s: %v", picvault.ErrTransform, format, err)
	}
	return buf.Bytes(), nil
}

// fit scales (w, h) down to the largest size that fits the bounding box
// while preserving aspect ratio. Images already inside the box keep their
// dimensions; thumbnails never upscale.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	rw := float64(maxW) / float64(w)
	rh := float64(maxH) / float64(h)
	r := rw
	if rh < rw {
		r = rh
	}
	dw := int(float64(w) * r)
	dh := int(float64(h) * r)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}
