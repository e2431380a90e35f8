package pipeline

// neverShrink lists formats the recompression step cannot encode faithfully.
// SVG is already vector and lossless.
var neverShrink = map[string]bool{
	"webp": true,
	"svg":  true,
	"gif":  true,
}

// ShouldShrink decides whether recompression is permitted. Excluded formats
// and animated payloads always yield false, whatever was requested.
func ShouldShrink(requested bool, format ImageFormat, data []byte) bool {
	if neverShrink[format.Extension] {
		return false
	}
	if IsAnimated(data) {
		return false
	}
	return requested
}
