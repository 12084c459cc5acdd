package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/vbonduro/screensolve/internal/domain"
)

const (
	DefaultMaxWidth = 1920
	DefaultQuality  = 70

	// maxPixels bounds the decoded size of a screenshot; larger headers are
	// rejected before any pixel memory is allocated.
	maxPixels = 64 << 20
)

var ErrImageTooLarge = errors.New("image dimensions too large")

type NormalizeOptions struct {
	// MaxWidth bounds the output width; wider images are scaled down keeping
	// their aspect ratio. Zero disables scaling.
	MaxWidth int
	// Quality is the JPEG quality, 1 to 100.
	Quality int
}

// Normalize decodes a PNG, JPEG, GIF or WebP screenshot, flattens any
// transparency onto white, downscales it to opts.MaxWidth and re-encodes it as
// JPEG.
func Normalize(data []byte, opts NormalizeOptions) (domain.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return domain.Image{}, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return domain.Image{}, fmt.Errorf("empty %s image", format)
	}
	if opts.MaxWidth > 0 && w > opts.MaxWidth {
		h = max(1, h*opts.MaxWidth/w)
		w = opts.MaxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return domain.Image{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return domain.Image{Data: out.Bytes(), MimeType: "image/jpeg"}, nil
}
