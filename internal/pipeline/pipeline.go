package pipeline

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelnote/internal/options"
)

type Outcome string

const (
	OutcomeSkipped       Outcome = "skipped"
	OutcomeShrunk        Outcome = "shrunk"
	OutcomeNoImprovement Outcome = "no_improvement"
	OutcomeFailed        Outcome = "resize_failed"
)

// ProcessedAsset is the pipeline output. Data is never longer than the input.
type ProcessedAsset struct {
	Data    []byte
	Format  ImageFormat
	Outcome Outcome
}

// Pipeline runs detection, the shrink policy and the resizer with fallback to
// the original bytes on failure or when resizing does not pay off.
type Pipeline struct {
	resizer Resizer
	options options.Provider
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func New(resizer Resizer, opts options.Provider, logger zerolog.Logger) *Pipeline {
	if resizer == nil {
		resizer = NewResizer()
	}
	if opts == nil {
		opts = options.NewStatic(nil)
	}
	return &Pipeline{
		resizer: resizer,
		options: opts,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		tracer:  otel.Tracer("pixelnote/pipeline"),
	}
}

func (p *Pipeline) Process(ctx context.Context, input []byte, originalName string, shrinkRequested bool) ProcessedAsset {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()

	detected := DetectFormat(input)
	shrink := ShouldShrink(shrinkRequested, detected, input)
	span.SetAttributes(
		attribute.String("image.format", detected.Extension),
		attribute.Int("image.bytes", len(input)),
		attribute.Bool("image.shrink", shrink),
	)

	output, outcome := input, OutcomeSkipped
	if shrink {
		output, outcome = p.shrink(ctx, input, originalName)
	}

	final := ProcessedAsset{
		Data:    output,
		Format:  DetectFormat(output),
		Outcome: outcome,
	}
	span.SetAttributes(
		attribute.String("image.outcome", string(outcome)),
		attribute.String("image.final_format", final.Format.Extension),
		attribute.Int("image.final_bytes", len(output)),
	)
	return final
}

func (p *Pipeline) shrink(ctx context.Context, input []byte, originalName string) (output []byte, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("original_name", originalName).
				Int("bytes", len(input)).
				Interface("panic", r).
				Msg("resizer panicked, keeping original")
			output, outcome = input, OutcomeFailed
		}
	}()

	settings := p.settings(ctx)

	resized, err := p.resizer.Resize(ctx, input, settings.MaxDimension, settings.Quality)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("original_name", originalName).
			Int("bytes", len(input)).
			Msg("failed to resize image, keeping original")
		return input, OutcomeFailed
	}

	if len(resized) >= len(input) {
		p.logger.Debug().
			Str("original_name", originalName).
			Int("original_bytes", len(input)).
			Int("resized_bytes", len(resized)).
			Msg("resized image is not smaller, keeping original")
		return input, OutcomeNoImprovement
	}
	return resized, OutcomeShrunk
}

type Settings struct {
	MaxDimension int
	Quality      int
}

func (p *Pipeline) settings(ctx context.Context) Settings {
	maxDimension, err := p.options.Int(ctx, options.ImageMaxWidthHeight)
	if err != nil {
		p.logger.Warn().Err(err).Str("option", options.ImageMaxWidthHeight).Msg("option lookup failed, using default")
		maxDimension = options.DefaultImageMaxWidthHeight
	}
	quality, err := p.options.Int(ctx, options.ImageJpegQuality)
	if err != nil {
		p.logger.Warn().Err(err).Str("option", options.ImageJpegQuality).Msg("option lookup failed, using default")
		quality = options.DefaultImageJpegQuality
	}
	return NormalizeSettings(Settings{MaxDimension: maxDimension, Quality: quality})
}

// NormalizeSettings resets out-of-range tunables to their defaults.
func NormalizeSettings(s Settings) Settings {
	if s.MaxDimension <= 0 {
		s.MaxDimension = options.DefaultImageMaxWidthHeight
	}
	if s.Quality < 10 || s.Quality > 100 {
		s.Quality = options.DefaultImageJpegQuality
	}
	return s
}
