// Package imageproc implements the variant generation algorithm: resize,
// grayscale, blur, rotate, then encode, in that fixed order.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	_ "golang.org/x/image/webp" // webp decode registration
)

// Options controls a single transformation. Zero values mean "skip this
// step"; Format defaults to the source format.
type Options struct {
	Width     int
	Height    int
	Format    string
	Quality   int
	Crop      bool
	Grayscale bool
	Blur      float64
	Rotate    float64
}

// Result is the encoded output of a transformation.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Format  string
	Quality int
}

const defaultQuality = 80

// Transform decodes source bytes, applies the requested steps in fixed order
// and encodes the output. Non-image input fails at the decode step.
func Transform(source []byte, opts Options) (*Result, error) {
	img, sourceFormat, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = applyResize(img, opts)

	if opts.Grayscale {
		img = imaging.Grayscale(img)
	}
	if opts.Blur > 0 {
		img = imaging.Blur(img, opts.Blur)
	}
	if opts.Rotate != 0 {
		img = imaging.Rotate(img, opts.Rotate, color.Transparent)
	}

	format := opts.Format
	if format == "" {
		format = sourceFormat
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = defaultQuality
	}

	data, err := encode(img, format, quality)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &Result{
		Data:    data,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Format:  format,
		Quality: quality,
	}, nil
}

// applyResize performs step one of the pipeline. With both dimensions set,
// fit is cover/crop when requested, otherwise contain. The source is never
// upscaled beyond its native resolution.
func applyResize(img image.Image, opts Options) image.Image {
	if opts.Width <= 0 && opts.Height <= 0 {
		return img
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	switch {
	case opts.Width > 0 && opts.Height > 0 && opts.Crop:
		return imaging.Fill(img, opts.Width, opts.Height, imaging.Center, imaging.Lanczos)
	case opts.Width > 0 && opts.Height > 0:
		// Fit only scales down.
		return imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
	case opts.Width > 0:
		if opts.Width >= srcW {
			return img
		}
		return resize.Resize(uint(opts.Width), 0, img, resize.Lanczos3)
	default:
		if opts.Height >= srcH {
			return img
		}
		return resize.Resize(0, uint(opts.Height), img, resize.Lanczos3)
	}
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}

	return buf.Bytes(), nil
}
