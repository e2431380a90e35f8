package pipeline

import (
	"bytes"
	"image/color"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "svg", data: []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`), want: "svg"},
		{name: "svg with prolog", data: []byte("<?xml version=\"1.0\"?>\n<!-- drawn -->\n<!DOCTYPE svg PUBLIC \"-//W3C//DTD SVG 1.1//EN\" \"x\">\n<svg></svg>"), want: "svg"},
		{name: "svg with bom", data: append([]byte{0xEF, 0xBB, 0xBF}, []byte("  <SVG></SVG>")...), want: "svg"},
		{name: "html mentioning svg", data: []byte("<html><body><svg></svg></body></html>"), want: FallbackFormat},
		{name: "png", data: buildSolidPNG(t, 2, 2, color.Black), want: "png"},
		{name: "jpeg", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, want: "jpg"},
		{name: "gif", data: buildTestGIF(t, 1), want: "gif"},
		{name: "webp", data: buildWebP(false), want: "webp"},
		{name: "bmp", data: []byte("BM\x00\x00\x00\x00"), want: "bmp"},
		{name: "tiff little endian", data: []byte{'I', 'I', 0x2A, 0x00, 0x08}, want: "tif"},
		{name: "tiff big endian", data: []byte{'M', 'M', 0x00, 0x2A, 0x00}, want: "tif"},
		{name: "ico", data: []byte{0x00, 0x00, 0x01, 0x00, 0x01}, want: "ico"},
		{name: "avif", data: append([]byte{0, 0, 0, 0x20}, []byte("ftypavif")...), want: "avif"},
		{name: "riff without webp", data: []byte("RIFF\x00\x00\x00\x00WAVE"), want: FallbackFormat},
		{name: "unknown", data: []byte("plain text"), want: FallbackFormat},
		{name: "empty", data: nil, want: FallbackFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectFormat(tc.data)
			if got.Extension == "" {
				t.Fatal("expected non-empty extension")
			}
			if got.Extension != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Extension)
			}
		})
	}
}

func TestDetectFormatIgnoresSVGBeyondSniffLimit(t *testing.T) {
	data := append(bytes.Repeat([]byte(" "), svgSniffLimit), []byte("<svg></svg>")...)
	if got := DetectFormat(data); got.Extension != FallbackFormat {
		t.Fatalf("expected fallback for late svg root, got %s", got.Extension)
	}
}

func TestMimeForExtension(t *testing.T) {
	tests := map[string]string{
		"svg":  "image/svg+xml",
		"PNG":  "image/png",
		"jpg":  "image/jpg",
		"webp": "image/webp",
	}
	for ext, want := range tests {
		if got := MimeForExtension(ext); got != want {
			t.Fatalf("MimeForExtension(%q): expected %s, got %s", ext, want, got)
		}
	}

	if got := (ImageFormat{Extension: "gif"}).Mime(); got != "image/gif" {
		t.Fatalf("expected image/gif, got %s", got)
	}
}
