package config

import (
	"testing"
	"time"

	"github.com/dunamismax/pixelnote/internal/options"
)

func TestLoadDefaults(t *testing.T) {

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.Addr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.API.Addr)
	}
	if cfg.Image.MaxWidthHeight != options.DefaultImageMaxWidthHeight {
		t.Fatalf("expected default max dimension, got %d", cfg.Image.MaxWidthHeight)
	}
	if cfg.Worker.Concurrency < 2 {
		t.Fatalf("expected worker concurrency >= 2, got %d", cfg.Worker.Concurrency)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected 1m window, got %s", cfg.RateLimit.Window)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IMAGE_JPEG_QUALITY", "55")
	t.Setenv("IMAGE_COMPRESS", "false")
	t.Setenv("PIXELNOTE_DB_DRIVER", "postgres")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %s", cfg.Database.Driver)
	}

	values := cfg.Image.OptionValues()
	if values[options.ImageJpegQuality] != "55" || values[options.CompressImages] != "false" {
		t.Fatalf("unexpected option values: %v", values)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("IMAGE_JPEG_QUALITY", "high")

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for non-integer quality")
	}
}
