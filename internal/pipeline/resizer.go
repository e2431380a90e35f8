package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// MaxSourcePixels caps width*height of a source image. Sources above it are
// rejected from the header alone, before any pixel buffer is allocated.
const MaxSourcePixels = 50_000_000

// ErrDecode matches any *DecodeError via errors.Is.
var ErrDecode = errors.New("decode image")

// DecodeError reports bytes that could not be parsed as a raster image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Resizer downscales to fit maxDimension on the long edge and re-encodes as
// JPEG at the given quality, flattening transparency onto white.
type Resizer interface {
	Resize(ctx context.Context, input []byte, maxDimension, quality int) ([]byte, error)
}

// targetSize applies the long-edge rule. Only one axis is ever binding and the
// comparisons are strict; ok is false when no geometric resize is needed.
func targetSize(width, height, maxDimension int) (w, h int, ok bool) {
	switch {
	case width > height && width > maxDimension:
		return maxDimension, scaleEdge(height, maxDimension, width), true
	case height > maxDimension:
		return scaleEdge(width, maxDimension, height), maxDimension, true
	default:
		return width, height, false
	}
}

func scaleEdge(edge, target, binding int) int {
	scaled := int(math.Round(float64(edge) * float64(target) / float64(binding)))
	if scaled < 1 {
		return 1
	}
	return scaled
}

// checkSourcePixels reads only the image header and rejects sources whose
// decoded form would exceed MaxSourcePixels.
func checkSourcePixels(input []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return &DecodeError{Err: errors.New("source image has invalid dimensions")}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxSourcePixels {
		return &DecodeError{Err: fmt.Errorf("source is %dx%d, %d pixels exceeds the %d pixel limit", cfg.Width, cfg.Height, pixels, MaxSourcePixels)}
	}
	return nil
}
