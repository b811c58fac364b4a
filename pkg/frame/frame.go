// Package frame defines the RGB frame type shared by every go-lens stage and
// the Source interface frame producers implement.
package frame

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"time"
)

// Channels is the number of bytes per pixel in Frame.Pix.
const Channels = 3

// Sentinel errors.
var (
	// ErrNoFrame is returned when a source has no current frame.
	ErrNoFrame = errors.New("frame: no frame available")

	// ErrSizeMismatch is returned when a destination buffer has the wrong length.
	ErrSizeMismatch = errors.New("frame: buffer size mismatch")

	// ErrInvalidSize is returned for non-positive dimensions.
	ErrInvalidSize = errors.New("frame: invalid size")
)

// Frame is a row-major RGB raster, 3 bytes per pixel.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8

	// Seq increments for every frame a source produces (0 when unknown).
	Seq uint64

	// CapturedAt is when the pixels were read from the source.
	CapturedAt time.Time
}

// New allocates a black frame of the given size.
func New(w, h int) (*Frame, error) {
	if w < 1 || h < 1 {
		return nil, ErrInvalidSize
	}
	return &Frame{Width: w, Height: h, Pix: make([]uint8, w*h*Channels)}, nil
}

// Len is the byte length of a w x h frame.
func Len(w, h int) int {
	return w * h * Channels
}

// Stride is the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * Channels
}

// Valid reports whether Pix matches the dimensions.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == Len(f.Width, f.Height)
}

// Clone returns an independent copy.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = make([]uint8, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return color.RGBA{}
	}
	i := y*f.Stride() + x*Channels
	return color.RGBA{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: 0xff}
}

// ToRGBA converts into dst, allocating when dst is nil or the wrong size.
func (f *Frame) ToRGBA(dst *image.RGBA) *image.RGBA {
	if dst == nil || dst.Rect.Dx() != f.Width || dst.Rect.Dy() != f.Height {
		dst = image.NewRGBA(f.Bounds())
	}
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride() : (y+1)*f.Stride()]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			row[x*4] = src[x*3]
			row[x*4+1] = src[x*3+1]
			row[x*4+2] = src[x*3+2]
			row[x*4+3] = 0xff
		}
	}
	return dst
}

// FromImage converts any image into a new Frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := &Frame{Width: b.Dx(), Height: b.Dy()}
	f.Pix = make([]uint8, Len(f.Width, f.Height))
	f.CopyFrom(img)
	return f
}

// CopyFrom overwrites f's pixels with img, which must have f's size.
func (f *Frame) CopyFrom(img image.Image) {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		b = rgba.Bounds()
	}
	for y := 0; y < f.Height; y++ {
		srcOff := rgba.PixOffset(b.Min.X, b.Min.Y+y)
		dst := f.Pix[y*f.Stride() : (y+1)*f.Stride()]
		for x := 0; x < f.Width; x++ {
			dst[x*3] = rgba.Pix[srcOff+x*4]
			dst[x*3+1] = rgba.Pix[srcOff+x*4+1]
			dst[x*3+2] = rgba.Pix[srcOff+x*4+2]
		}
	}
}
