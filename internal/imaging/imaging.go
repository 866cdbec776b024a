// Package imaging decodes uploaded images, flattens transparency, bounds their
// size and re-encodes them for storage.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // 只取首帧
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器

	"github.com/notes-bin/imghost/internal/model"
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// DefaultMaxPixels matches Pillow's decompression bomb threshold.
const DefaultMaxPixels = 178956970

// ProcessingError matches model.ErrImageProcessing and wraps the underlying cause.
type ProcessingError struct {
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return "image processing failed: " + e.Reason
	}
	return fmt.Sprintf("image processing failed: %s: %v", e.Reason, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) Is(target error) bool { return target == model.ErrImageProcessing }

type Result struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
	Ext      string
}

type Transcoder struct {
	Quality      int
	MaxDimension int
	// MaxPixels bounds width*height read from the header before any pixel
	// buffer is allocated. Zero means DefaultMaxPixels.
	MaxPixels int64
}

func NewTranscoder(quality, maxDimension int) *Transcoder {
	return &Transcoder{Quality: quality, MaxDimension: maxDimension}
}

// IsJPEG reports whether a declared content type belongs to the JPEG family.
func IsJPEG(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return true
	}
	return false
}

// Transcode never returns partial output: either a complete Result or a *ProcessingError.
func (t *Transcoder) Transcode(raw []byte, mimeType string) (*Result, error) {
	hdr, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &ProcessingError{Reason: "cannot decode image", Err: fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)}
	}
	if int64(hdr.Width)*int64(hdr.Height) > t.pixelLimit() {
		return nil, &ProcessingError{Reason: "image too large to decode"}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &ProcessingError{Reason: "cannot decode image", Err: fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)}
	}

	sb := src.Bounds()
	if sb.Empty() {
		return nil, &ProcessingError{Reason: "image has no pixels"}
	}
	w, h := Fit(sb.Dx(), sb.Dy(), t.MaxDimension)

	// 透明和调色板图像统一铺到白底 RGB 上
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	var buf bytes.Buffer
	res := &Result{Width: w, Height: h}
	if IsJPEG(mimeType) {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: clampQuality(t.Quality)})
		res.MimeType, res.Ext = MimeJPEG, ".jpg"
	} else {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, dst)
		res.MimeType, res.Ext = MimePNG, ".png"
	}
	if err != nil {
		return nil, &ProcessingError{Reason: "cannot encode image", Err: err}
	}
	res.Data = buf.Bytes()
	return res, nil
}

func (t *Transcoder) pixelLimit() int64 {
	if t.MaxPixels > 0 {
		return t.MaxPixels
	}
	return DefaultMaxPixels
}

// Probe reads dimensions and format without decoding the pixel data.
func Probe(raw []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, "", &ProcessingError{Reason: "cannot read image header", Err: fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)}
	}
	return cfg.Width, cfg.Height, format, nil
}

// Fit scales (w, h) down so that neither side exceeds limit, keeping the aspect ratio.
func Fit(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, scaleSide(h, limit, w)
	}
	return scaleSide(w, limit, h), limit
}

func scaleSide(side, limit, long int) int {
	n := int(math.Round(float64(side) * float64(limit) / float64(long)))
	if n < 1 {
		return 1
	}
	return n
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}
