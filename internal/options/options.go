package options

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	ImageMaxWidthHeight = "imageMaxWidthHeight"
	ImageJpegQuality    = "imageJpegQuality"
	CompressImages      = "compressImages"

	DefaultImageMaxWidthHeight = 2000
	DefaultImageJpegQuality    = 75
	DefaultCompressImages      = true
)

var ErrOptionNotFound = errors.New("option not found")

type Provider interface {
	Int(ctx context.Context, name string) (int, error)
	Bool(ctx context.Context, name string) (bool, error)
}

// Defaults returns the built-in value of every known option.
func Defaults() map[string]string {
	return map[string]string{
		ImageMaxWidthHeight: strconv.Itoa(DefaultImageMaxWidthHeight),
		ImageJpegQuality:    strconv.Itoa(DefaultImageJpegQuality),
		CompressImages:      strconv.FormatBool(DefaultCompressImages),
	}
}

// Static serves options from a fixed map layered over Defaults.
type Static struct {
	values map[string]string
}

func NewStatic(values map[string]string) *Static {
	merged := Defaults()
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		merged[name] = value
	}
	return &Static{values: merged}
}

func (s *Static) Int(_ context.Context, name string) (int, error) {
	value, ok := s.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrOptionNotFound, name)
	}
	return parseInt(name, value)
}

func (s *Static) Bool(_ context.Context, name string) (bool, error) {
	value, ok := s.values[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrOptionNotFound, name)
	}
	return parseBool(name, value)
}

// Reader is the raw option lookup offered by the note store.
type Reader interface {
	Option(ctx context.Context, name string) (string, bool, error)
}

// Stored reads options persisted next to the notes and falls back to another
// provider for names that were never written.
type Stored struct {
	reader   Reader
	fallback Provider
}

func NewStored(reader Reader, fallback Provider) *Stored {
	if fallback == nil {
		fallback = NewStatic(nil)
	}
	return &Stored{reader: reader, fallback: fallback}
}

func (s *Stored) Int(ctx context.Context, name string) (int, error) {
	value, ok, err := s.reader.Option(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("read option %s: %w", name, err)
	}
	if !ok {
		return s.fallback.Int(ctx, name)
	}
	return parseInt(name, value)
}

func (s *Stored) Bool(ctx context.Context, name string) (bool, error) {
	value, ok, err := s.reader.Option(ctx, name)
	if err != nil {
		return false, fmt.Errorf("read option %s: %w", name, err)
	}
	if !ok {
		return s.fallback.Bool(ctx, name)
	}
	return parseBool(name, value)
}

func parseInt(name, value string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("option %s is not an integer: %w", name, err)
	}
	return parsed, nil
}

func parseBool(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("option %s is not a boolean: %w", name, err)
	}
	return parsed, nil
}
