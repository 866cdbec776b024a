package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/imghost/internal/model"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func TestTranscode_DownscalesLargerSide(t *testing.T) {
	tests := []struct {
		name         string
		w, h, limit  int
		wantW, wantH int
	}{
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 150, 600, 120, 30, 120},
		{"square", 300, 300, 64, 64, 64},
		{"odd ratio", 1000, 333, 300, 300, 100},
		{"already small", 80, 40, 100, 80, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := NewTranscoder(85, tt.limit)
			res, err := tc.Transcode(encodePNG(t, gradient(tt.w, tt.h)), "image/png")
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, res.Width)
			assert.Equal(t, tt.wantH, res.Height)

			out, err := png.Decode(bytes.NewReader(res.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())

			// 长宽比在取整误差内保持不变
			inRatio := float64(tt.w) / float64(tt.h)
			outRatio := float64(res.Width) / float64(res.Height)
			assert.InEpsilon(t, inRatio, outRatio, 0.02)
		})
	}
}

func TestTranscode_AlphaFlattenedToWhiteForJPEG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			src.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	res, err := NewTranscoder(90, 4096).Transcode(encodePNG(t, src), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, MimeJPEG, res.MimeType)
	assert.Equal(t, ".jpg", res.Ext)

	out, err := jpeg.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	_, isYCbCr := out.(*image.YCbCr)
	assert.True(t, isYCbCr, "jpeg output must not carry alpha")

	r, g, b, _ := out.At(35, 10).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))

	r, g, b, _ = out.At(2, 10).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(60))
	assert.Less(t, b>>8, uint32(60))
}

func TestTranscode_NonJPEGBecomesOpaquePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8)) // 全透明

	res, err := NewTranscoder(85, 4096).Transcode(encodePNG(t, src), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, MimePNG, res.MimeType)
	assert.Equal(t, ".png", res.Ext)

	out, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	opaque, ok := out.(interface{ Opaque() bool })
	require.True(t, ok)
	assert.True(t, opaque.Opaque())

	r, g, b, _ := out.At(4, 4).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})
}

func TestTranscode_PalettedGIF(t *testing.T) {
	pal := color.Palette{color.Transparent, color.RGBA{B: 255, A: 255}}
	src := image.NewPaletted(image.Rect(0, 0, 16, 16), pal)
	for x := 0; x < 8; x++ {
		src.SetColorIndex(x, 0, 1)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, src, nil))

	res, err := NewTranscoder(85, 4096).Transcode(buf.Bytes(), "image/gif")
	require.NoError(t, err)
	assert.Equal(t, MimePNG, res.MimeType)
	assert.Equal(t, 16, res.Width)
	assert.Equal(t, 16, res.Height)

	out, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	r, g, b, _ := out.At(12, 12).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})
}

func TestTranscode_QualityOnlyAffectsJPEG(t *testing.T) {
	raw := encodePNG(t, gradient(256, 256))

	low, err := NewTranscoder(10, 4096).Transcode(raw, "image/jpeg")
	require.NoError(t, err)
	high, err := NewTranscoder(95, 4096).Transcode(raw, "image/jpeg")
	require.NoError(t, err)
	assert.Less(t, len(low.Data), len(high.Data))

	pngLow, err := NewTranscoder(10, 4096).Transcode(raw, "image/png")
	require.NoError(t, err)
	pngHigh, err := NewTranscoder(95, 4096).Transcode(raw, "image/png")
	require.NoError(t, err)
	assert.Equal(t, pngLow.Data, pngHigh.Data)
}

func TestTranscode_Unsupported(t *testing.T) {
	_, err := NewTranscoder(85, 4096).Transcode([]byte("%PDF-1.4 not an image"), "image/png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrImageProcessing))
	assert.True(t, errors.Is(err, model.ErrUnsupportedFormat))

	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "cannot decode image", perr.Reason)
}

// withHeaderSize rewrites the IHDR dimensions of a PNG and fixes up the chunk CRC,
// leaving the tiny pixel stream untouched.
func withHeaderSize(t *testing.T, raw []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), raw...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestTranscode_RejectsOversizedHeader(t *testing.T) {
	bomb := withHeaderSize(t, encodePNG(t, gradient(1, 1)), 60000, 60000)
	require.Less(t, len(bomb), 200)

	w, h, _, err := Probe(bomb)
	require.NoError(t, err)
	require.Equal(t, 60000, w)
	require.Equal(t, 60000, h)

	_, err = NewTranscoder(85, 4096).Transcode(bomb, "image/png")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrImageProcessing)
	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "image too large to decode", perr.Reason)
}

func TestTranscode_PixelLimit(t *testing.T) {
	raw := encodePNG(t, gradient(100, 100))

	tc := NewTranscoder(85, 4096)
	tc.MaxPixels = 100*100 - 1
	_, err := tc.Transcode(raw, "image/png")
	assert.ErrorIs(t, err, model.ErrImageProcessing)

	tc.MaxPixels = 100 * 100
	res, err := tc.Transcode(raw, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Width)
}

func TestProbe(t *testing.T) {
	w, h, format, err := Probe(encodePNG(t, gradient(33, 17)))
	require.NoError(t, err)
	assert.Equal(t, 33, w)
	assert.Equal(t, 17, h)
	assert.Equal(t, "png", format)

	_, _, _, err = Probe([]byte("nope"))
	assert.ErrorIs(t, err, model.ErrUnsupportedFormat)
	assert.ErrorIs(t, err, model.ErrImageProcessing)
}

func TestIsJPEG(t *testing.T) {
	for _, m := range []string{"image/jpeg", "image/jpg", "image/pjpeg", "IMAGE/JPEG"} {
		assert.True(t, IsJPEG(m), m)
	}
	for _, m := range []string{"image/png", "image/gif", "image/webp", ""} {
		assert.False(t, IsJPEG(m), m)
	}
}

func TestFit(t *testing.T) {
	w, h := Fit(5000, 1, 4096)
	assert.Equal(t, 4096, w)
	assert.Equal(t, 1, h)

	w, h = Fit(100, 50, 0)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}
