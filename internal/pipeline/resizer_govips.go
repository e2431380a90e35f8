//go:build govips && cgo

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsResizer struct{}

func (govipsResizer) Resize(ctx context.Context, input []byte, maxDimension, quality int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Formats only libvips understands skip the header check.
	if err := checkSourcePixels(input); err != nil && !errors.Is(err, image.ErrFormat) {
		return nil, err
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	defer img.Close()

	if width, height, ok := targetSize(img.Width(), img.Height(), maxDimension); ok {
		hscale := float64(width) / float64(img.Width())
		vscale := float64(height) / float64(img.Height())
		if err := img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
			return nil, fmt.Errorf("resize image: %w", err)
		}
	}

	if img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, fmt.Errorf("flatten alpha: %w", err)
		}
	}

	params := vips.NewJpegExportParams()
	params.Quality = quality
	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, nil
}
