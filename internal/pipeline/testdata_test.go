package pipeline

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"math/rand/v2"
	"testing"
)

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

// buildNoisyPNG produces a PNG that deflate cannot squeeze, so a downscaled
// JPEG is reliably smaller.
func buildNoisyPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.IntN(256))
		img.Pix[i+1] = uint8(rng.IntN(256))
		img.Pix[i+2] = 140
		img.Pix[i+3] = 255
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode noisy png: %v", err)
	}
	return buf.Bytes()
}

func buildSolidPNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode solid png: %v", err)
	}
	return buf.Bytes()
}

func buildTestGIF(t testing.TB, frames int) []byte {
	t.Helper()

	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 16, 16), palette.Plan9)
		frame.SetColorIndex(i%16, i%16, uint8(i+1))
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

// buildAPNG splices an acTL chunk after IHDR of a regular PNG.
func buildAPNG(t testing.TB) []byte {
	t.Helper()

	src := buildSolidPNG(t, 4, 4, color.White)
	ihdrEnd := len(pngMagic) + 8 + 13 + 4

	actl := make([]byte, 0, 20)
	actl = binary.BigEndian.AppendUint32(actl, 8)
	actl = append(actl, "acTL"...)
	actl = binary.BigEndian.AppendUint32(actl, 2)
	actl = binary.BigEndian.AppendUint32(actl, 0)
	actl = binary.BigEndian.AppendUint32(actl, 0)

	out := append([]byte{}, src[:ihdrEnd]...)
	out = append(out, actl...)
	return append(out, src[ihdrEnd:]...)
}

func buildWebP(animated bool) []byte {
	var body []byte
	body = append(body, "WEBP"...)
	if animated {
		body = append(body, "VP8X"...)
		body = binary.LittleEndian.AppendUint32(body, 10)
		body = append(body, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0)
		body = append(body, "ANIM"...)
		body = binary.LittleEndian.AppendUint32(body, 6)
		body = append(body, 0, 0, 0, 0, 0, 0)
	} else {
		body = append(body, "VP8L"...)
		body = binary.LittleEndian.AppendUint32(body, 5)
		body = append(body, 0x2F, 0, 0, 0, 0, 0)
	}

	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

// buildZeroPNG writes an all-zero RGBA PNG row by row so a huge canvas costs
// only its compressed size.
func buildZeroPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, zlib.BestSpeed)
	if err != nil {
		t.Fatalf("create zlib writer: %v", err)
	}
	row := make([]byte, 1+4*w)
	for y := 0; y < h; y++ {
		if _, err := zw.Write(row); err != nil {
			t.Fatalf("write png row: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zlib writer: %v", err)
	}

	ihdr := binary.BigEndian.AppendUint32(nil, uint32(w))
	ihdr = binary.BigEndian.AppendUint32(ihdr, uint32(h))
	ihdr = append(ihdr, 8, 6, 0, 0, 0)

	out := append([]byte{}, pngMagic...)
	out = appendPNGChunk(out, "IHDR", ihdr)
	out = appendPNGChunk(out, "IDAT", idat.Bytes())
	return appendPNGChunk(out, "IEND", nil)
}

func appendPNGChunk(out []byte, kind string, data []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	start := len(out)
	out = append(out, kind...)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[start:]))
}
