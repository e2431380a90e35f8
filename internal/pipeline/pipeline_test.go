package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dunamismax/pixelnote/internal/options"
)

func newTestPipeline(resizer Resizer, maxDimension int) *Pipeline {
	opts := options.NewStatic(map[string]string{
		options.ImageMaxWidthHeight: strconv.Itoa(maxDimension),
	})
	return New(resizer, opts, zerolog.Nop())
}

func TestProcessShrinksLargePNG(t *testing.T) {
	input := buildNoisyPNG(t, 3000, 2000)

	got := newTestPipeline(NewResizer(), 1000).Process(context.Background(), input, "large.png", true)

	if got.Outcome != OutcomeShrunk {
		t.Fatalf("expected outcome %s, got %s", OutcomeShrunk, got.Outcome)
	}
	if got.Format.Extension != "jpg" {
		t.Fatalf("expected re-detected format jpg, got %s", got.Format.Extension)
	}
	if len(got.Data) >= len(input) {
		t.Fatalf("expected output smaller than input, got %d >= %d", len(got.Data), len(input))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(got.Data))
	if err != nil {
		t.Fatalf("decode output config: %v", err)
	}
	if cfg.Width != 1000 || cfg.Height != 667 {
		t.Fatalf("expected 1000x667, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestProcessKeepsAnimatedGIF(t *testing.T) {
	input := buildTestGIF(t, 4)
	resizer := &countingResizer{}

	got := newTestPipeline(resizer, 10).Process(context.Background(), input, "anim.gif", true)

	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected animated gif bytes to be preserved")
	}
	if got.Format.Extension != "gif" {
		t.Fatalf("expected gif, got %s", got.Format.Extension)
	}
	if got.Outcome != OutcomeSkipped {
		t.Fatalf("expected outcome %s, got %s", OutcomeSkipped, got.Outcome)
	}
	if resizer.calls != 0 {
		t.Fatalf("expected resizer not to be called, got %d calls", resizer.calls)
	}
}

func TestProcessKeepsTinyPNGWhenJPEGIsLarger(t *testing.T) {
	input := buildSolidPNG(t, 50, 50, color.RGBA{R: 10, G: 120, B: 200, A: 255})

	got := newTestPipeline(NewResizer(), 1000).Process(context.Background(), input, "tiny.png", true)

	if got.Outcome != OutcomeNoImprovement {
		t.Fatalf("expected outcome %s, got %s", OutcomeNoImprovement, got.Outcome)
	}
	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected original bytes to be kept")
	}
	if got.Format.Extension != "png" {
		t.Fatalf("expected png, got %s", got.Format.Extension)
	}
}

func TestProcessFallsBackOnResizeFailure(t *testing.T) {
	input := buildTestPNG(t, 40, 40)
	resizer := &countingResizer{err: errors.New("codec exploded")}

	got := newTestPipeline(resizer, 10).Process(context.Background(), input, "broken.png", true)

	if got.Outcome != OutcomeFailed {
		t.Fatalf("expected outcome %s, got %s", OutcomeFailed, got.Outcome)
	}
	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected original bytes after resize failure")
	}
	if got.Format.Extension != "png" {
		t.Fatalf("expected png, got %s", got.Format.Extension)
	}
}

func TestProcessFallsBackOnResizerPanic(t *testing.T) {
	input := buildTestPNG(t, 40, 40)

	got := newTestPipeline(panickingResizer{}, 10).Process(context.Background(), input, "panic.png", true)

	if got.Outcome != OutcomeFailed {
		t.Fatalf("expected outcome %s, got %s", OutcomeFailed, got.Outcome)
	}
	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected original bytes after resizer panic")
	}
	if got.Format.Extension != "png" {
		t.Fatalf("expected png, got %s", got.Format.Extension)
	}
}

func TestProcessKeepsOversizedSource(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 12000x12000 png")
	}
	input := buildZeroPNG(t, 12000, 12000)

	got := newTestPipeline(stdlibResizer{}, 2000).Process(context.Background(), input, "huge.png", true)

	if got.Outcome != OutcomeFailed {
		t.Fatalf("expected outcome %s, got %s", OutcomeFailed, got.Outcome)
	}
	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected original bytes for oversized source")
	}
	if got.Format.Extension != "png" {
		t.Fatalf("expected png, got %s", got.Format.Extension)
	}
}

func TestProcessFallsBackOnUndecodableInput(t *testing.T) {
	input := []byte("not an image at all, but shrink was requested")

	got := newTestPipeline(NewResizer(), 1000).Process(context.Background(), input, "notes.txt", true)

	if got.Outcome != OutcomeFailed {
		t.Fatalf("expected outcome %s, got %s", OutcomeFailed, got.Outcome)
	}
	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected original bytes for undecodable input")
	}
	if got.Format.Extension != FallbackFormat {
		t.Fatalf("expected fallback format, got %s", got.Format.Extension)
	}
}

func TestProcessDiscardsEqualSizedOutput(t *testing.T) {
	input := buildTestPNG(t, 20, 20)
	resizer := &countingResizer{out: bytes.Repeat([]byte{0xFF}, len(input))}

	got := newTestPipeline(resizer, 10).Process(context.Background(), input, "same.png", true)

	if got.Outcome != OutcomeNoImprovement {
		t.Fatalf("expected outcome %s, got %s", OutcomeNoImprovement, got.Outcome)
	}
	if !bytes.Equal(got.Data, input) {
		t.Fatal("expected original bytes when output is not smaller")
	}
}

func TestProcessWithoutShrinkIsIdentity(t *testing.T) {
	inputs := map[string][]byte{
		"png":     buildTestPNG(t, 64, 32),
		"svg":     []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`),
		"unknown": []byte("opaque"),
	}

	p := newTestPipeline(&countingResizer{}, 10)
	for name, input := range inputs {
		got := p.Process(context.Background(), input, name, false)
		if !bytes.Equal(got.Data, input) {
			t.Fatalf("%s: expected identical bytes without shrink", name)
		}
		if len(got.Data) > len(input) {
			t.Fatalf("%s: output grew", name)
		}
	}
}

func TestProcessIsIdempotentWithoutShrink(t *testing.T) {
	p := newTestPipeline(NewResizer(), 100)
	first := p.Process(context.Background(), buildTestPNG(t, 400, 300), "photo.png", true)

	second := p.Process(context.Background(), first.Data, "photo.png", false)
	if !bytes.Equal(second.Data, first.Data) {
		t.Fatal("expected processed bytes to pass through unchanged")
	}
	if second.Format != first.Format {
		t.Fatalf("expected format %s, got %s", first.Format, second.Format)
	}
}

func TestProcessUsesConfiguredSettings(t *testing.T) {
	resizer := &countingResizer{out: []byte{0xFF, 0xD8, 0xFF}}
	opts := options.NewStatic(map[string]string{
		options.ImageMaxWidthHeight: "640",
		options.ImageJpegQuality:    "5",
	})

	New(resizer, opts, zerolog.Nop()).Process(context.Background(), buildTestPNG(t, 20, 20), "a.png", true)

	if resizer.maxDimension != 640 {
		t.Fatalf("expected max dimension 640, got %d", resizer.maxDimension)
	}
	if resizer.quality != options.DefaultImageJpegQuality {
		t.Fatalf("expected out-of-range quality to reset to %d, got %d", options.DefaultImageJpegQuality, resizer.quality)
	}
}

func TestNormalizeSettings(t *testing.T) {
	got := NormalizeSettings(Settings{MaxDimension: 0, Quality: 101})
	if got.MaxDimension != options.DefaultImageMaxWidthHeight || got.Quality != options.DefaultImageJpegQuality {
		t.Fatalf("expected defaults, got %+v", got)
	}

	kept := NormalizeSettings(Settings{MaxDimension: 800, Quality: 10})
	if kept.MaxDimension != 800 || kept.Quality != 10 {
		t.Fatalf("expected settings kept, got %+v", kept)
	}
}

type countingResizer struct {
	calls        int
	maxDimension int
	quality      int
	out          []byte
	err          error
}

func (r *countingResizer) Resize(_ context.Context, _ []byte, maxDimension, quality int) ([]byte, error) {
	r.calls++
	r.maxDimension = maxDimension
	r.quality = quality
	return r.out, r.err
}

type panickingResizer struct{}

func (panickingResizer) Resize(context.Context, []byte, int, int) ([]byte, error) {
	panic("codec bug")
}
