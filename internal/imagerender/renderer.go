package imagerender

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNotImage is returned when the payload's magic bytes are not an image format.
	ErrNotImage = errors.New("payload is not an image")
	// ErrTooLarge is returned when the header declares more pixels than allowed.
	ErrTooLarge = errors.New("image dimensions exceed limit")
)

// DefaultMaxPixels bounds the canvas a header may declare before pixels are decoded.
const DefaultMaxPixels = 40_000_000

// Decoder turns uploaded bytes into a bitmap. The header is read first so a
// forged canvas size is rejected before any pixel buffer is allocated.
type Decoder struct {
	// MaxPixels <= 0 means DefaultMaxPixels.
	MaxPixels int
}

// Decode uses DefaultMaxPixels.
func Decode(data []byte) (image.Image, error) {
	return Decoder{}.Decode(data)
}

// Decode sniffs data by magic bytes, checks the declared size and decodes it.
func (d Decoder) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrNotImage)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}

	w, h, err := Dimensions(data)
	if err != nil {
		return nil, err
	}
	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(w)*int64(h) > int64(limit) {
		log.Warn().
			Str("mime", mtype.String()).
			Int("width", w).
			Int("height", h).
			Int("max_pixels", limit).
			Msg("image rejected before decoding")
		return nil, fmt.Errorf("%w: %dx%d > %d pixels", ErrTooLarge, w, h, limit)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", mtype.String(), err)
	}

	b := img.Bounds()
	log.Debug().
		Str("mime", mtype.String()).
		Str("format", format).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Msg("decoded image")
	return img, nil
}

// EncodeForModel scales img to fit inside a size x size square, flattens any
// alpha onto white and returns the PNG bytes. A non-positive size keeps the
// original dimensions.
func EncodeForModel(img image.Image, size int) ([]byte, error) {
	src := img.Bounds()
	if src.Dx() == 0 || src.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	w, h := src.Dx(), src.Dy()
	if size > 0 {
		w, h = fitInside(w, h, size)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.Debug().
		Int("src_width", src.Dx()).
		Int("src_height", src.Dy()).
		Int("width", w).
		Int("height", h).
		Int("png_size", buf.Len()).
		Msg("encoded image for model")

	return buf.Bytes(), nil
}

func fitInside(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		nh := h * size / w
		if nh < 1 {
			nh = 1
		}
		return size, nh
	}
	nw := w * size / h
	if nw < 1 {
		nw = 1
	}
	return nw, size
}

// Dimensions reads the pixel size from an encoded image header without decoding pixels.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
