package pipeline

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// FallbackFormat is returned when no signature matches. Callers must tolerate
// a best-effort misclassification.
const FallbackFormat = "jpg"

// svgSniffLimit bounds how far into the payload the root element is searched.
const svgSniffLimit = 64 << 10

type ImageFormat struct {
	Extension string
}

// Mime derives the content type written to the note.
func (f ImageFormat) Mime() string {
	return MimeForExtension(f.Extension)
}

func (f ImageFormat) String() string {
	return f.Extension
}

func MimeForExtension(ext string) string {
	if ext == "svg" {
		return "image/svg+xml"
	}
	return "image/" + strings.ToLower(ext)
}

type signature struct {
	ext    string
	offset int
	magic  []byte
}

// Order matters only where prefixes overlap; none of these do.
var rasterSignatures = []signature{
	{ext: "png", magic: pngMagic},
	{ext: "jpg", magic: []byte{0xFF, 0xD8, 0xFF}},
	{ext: "gif", magic: []byte("GIF87a")},
	{ext: "gif", magic: []byte("GIF89a")},
	{ext: "webp", offset: 8, magic: []byte("WEBP")},
	{ext: "tif", magic: []byte{'I', 'I', 0x2A, 0x00}},
	{ext: "tif", magic: []byte{'M', 'M', 0x00, 0x2A}},
	{ext: "avif", offset: 4, magic: []byte("ftypavif")},
	{ext: "avif", offset: 4, magic: []byte("ftypavis")},
	{ext: "ico", magic: []byte{0x00, 0x00, 0x01, 0x00}},
	{ext: "bmp", magic: []byte("BM")},
}

// DetectFormat classifies data as svg, a known raster type or FallbackFormat.
func DetectFormat(data []byte) ImageFormat {
	if isSVG(data) {
		return ImageFormat{Extension: "svg"}
	}
	if ext, ok := rasterExtension(data); ok {
		return ImageFormat{Extension: ext}
	}
	return fallbackFormat()
}

func fallbackFormat() ImageFormat {
	return ImageFormat{Extension: FallbackFormat}
}

func rasterExtension(data []byte) (string, bool) {
	for _, sig := range rasterSignatures {
		if hasSignature(data, sig) {
			if sig.ext == "webp" && !bytes.HasPrefix(data, []byte("RIFF")) {
				continue
			}
			return sig.ext, true
		}
	}
	return "", false
}

func hasSignature(data []byte, sig signature) bool {
	end := sig.offset + len(sig.magic)
	if len(data) < end {
		return false
	}
	return bytes.Equal(data[sig.offset:end], sig.magic)
}

// isSVG reports whether the first element of an XML document is <svg>.
func isSVG(data []byte) bool {
	head := data
	if len(head) > svgSniffLimit {
		head = head[:svgSniffLimit]
	}
	head = bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF})
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) == 0 || head[0] != '<' {
		return false
	}
	if !bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return false
	}

	decoder := xml.NewDecoder(bytes.NewReader(head))
	decoder.Strict = false
	for {
		tok, err := decoder.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return strings.EqualFold(start.Name.Local, "svg")
		}
	}
}
