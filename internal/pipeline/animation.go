package pipeline

import (
	"bytes"
	"encoding/binary"
)

// IsAnimated reports whether data is a multi-frame GIF, an APNG or an
// animated WEBP. Only container headers are inspected, no pixels are decoded.
func IsAnimated(data []byte) bool {
	switch {
	case bytes.HasPrefix(data, []byte("GIF8")):
		return gifFrameCount(data, 2) > 1
	case bytes.HasPrefix(data, pngMagic):
		return pngHasAnimationControl(data)
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return webpIsAnimated(data)
	default:
		return false
	}
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// gifFrameCount walks GIF blocks and stops counting once limit is reached.
func gifFrameCount(data []byte, limit int) int {
	const headerLen = 13
	if len(data) < headerLen {
		return 0
	}

	pos := headerLen
	if packed := data[10]; packed&0x80 != 0 {
		pos += 3 << ((packed & 0x07) + 1)
	}

	frames := 0
	for pos < len(data) {
		switch data[pos] {
		case 0x21: // extension
			next, ok := skipGIFSubBlocks(data, pos+2)
			if !ok {
				return frames
			}
			pos = next
		case 0x2C: // image descriptor
			frames++
			if frames >= limit {
				return frames
			}
			if pos+10 > len(data) {
				return frames
			}
			packed := data[pos+9]
			pos += 10
			if packed&0x80 != 0 {
				pos += 3 << ((packed & 0x07) + 1)
			}
			next, ok := skipGIFSubBlocks(data, pos+1)
			if !ok {
				return frames
			}
			pos = next
		default: // trailer or garbage
			return frames
		}
	}
	return frames
}

func skipGIFSubBlocks(data []byte, pos int) (int, bool) {
	for pos < len(data) {
		size := int(data[pos])
		pos++
		if size == 0 {
			return pos, true
		}
		pos += size
	}
	return pos, false
}

// pngHasAnimationControl looks for an acTL chunk ahead of the first IDAT.
func pngHasAnimationControl(data []byte) bool {
	pos := len(pngMagic)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		switch chunkType {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		if length < 0 || length > len(data) {
			return false
		}
		pos += 12 + length
	}
	return false
}

func webpIsAnimated(data []byte) bool {
	const vp8xAnimationFlag = 0x02

	pos := 12
	for pos+8 <= len(data) {
		fourCC := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		switch fourCC {
		case "VP8X":
			if pos+9 <= len(data) && data[pos+8]&vp8xAnimationFlag != 0 {
				return true
			}
		case "ANIM", "ANMF":
			return true
		case "VP8 ", "VP8L":
			return false
		}
		if size < 0 || size > len(data) {
			return false
		}
		pos += 8 + size + size&1
	}
	return false
}
