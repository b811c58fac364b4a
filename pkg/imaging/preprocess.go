package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"image/png"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// DefaultJPEGQuality matches the text-detection upload quality.
const DefaultJPEGQuality = 75

// EncodedImage is an encoded frame ready for upload.
type EncodedImage struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Preprocessor downsamples and encodes frames.
type Preprocessor struct {
	resampler Resampler
}

// NewPreprocessor wraps a Resampler. A nil resampler selects the CPU one.
func NewPreprocessor(r Resampler) *Preprocessor {
	if r == nil {
		r = NewCPUResampler()
	}
	return &Preprocessor{resampler: r}
}

// Downsample scales src to exactly targetW x targetH. Upscaling is allowed.
func (p *Preprocessor) Downsample(src *frame.Frame, targetW, targetH int) (*frame.Frame, error) {
	if targetW < 1 || targetH < 1 {
		return nil, ErrInvalidSize
	}
	return p.resampler.Resize(src, targetW, targetH)
}

// DownsampleBy divides both dimensions by factor, never going below 1.
func (p *Preprocessor) DownsampleBy(src *frame.Frame, factor int) (*frame.Frame, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: factor %d", ErrInvalidSize, factor)
	}
	w, h := ScaledSize(src.Width, src.Height, factor)
	return p.Downsample(src, w, h)
}

// ScaledSize is max(1, w/factor) x max(1, h/factor).
func ScaledSize(w, h, factor int) (int, int) {
	return max(1, w/factor), max(1, h/factor)
}

// Encode compresses f. JPEG quality is clamped to 1..100; 0 selects
// DefaultJPEGQuality. PNG ignores quality.
func Encode(f *frame.Frame, format Format, quality int) (*EncodedImage, error) {
	var buf bytes.Buffer
	out := &EncodedImage{Width: f.Width, Height: f.Height}

	switch format {
	case FormatJPEG, "":
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		quality = min(max(quality, 1), 100)
		if err := jpeg.Encode(&buf, f, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		out.MIMEType = "image/jpeg"
	case FormatPNG:
		if err := png.Encode(&buf, f); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		out.MIMEType = "image/png"
	default:
		return nil, fmt.Errorf("imaging: unsupported format %q", format)
	}

	out.Data = buf.Bytes()
	return out, nil
}

// EncodeBase64 returns the standard base64 encoding of img.Data.
func EncodeBase64(img *EncodedImage) string {
	return base64.StdEncoding.EncodeToString(img.Data)
}
