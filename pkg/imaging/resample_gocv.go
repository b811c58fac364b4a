//go:build gocv

package imaging

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// GoCVResampler scales with OpenCV area interpolation.
type GoCVResampler struct {
	mu sync.Mutex // Protects native calls
}

func newGoCVResampler() (Resampler, error) {
	return &GoCVResampler{}, nil
}

// Resize implements Resampler. Every Mat is closed before returning.
func (r *GoCVResampler) Resize(src *frame.Frame, w, h int) (*frame.Frame, error) {
	if w < 1 || h < 1 {
		return nil, ErrInvalidSize
	}
	if !src.Valid() {
		return nil, frame.ErrInvalidSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	in, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC3, src.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.Resize(in, &out, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	if out.Empty() || out.Cols() != w || out.Rows() != h {
		return nil, fmt.Errorf("resize produced %dx%d, want %dx%d", out.Cols(), out.Rows(), w, h)
	}

	// ToBytes copies out of native memory.
	return &frame.Frame{
		Width:      w,
		Height:     h,
		Pix:        out.ToBytes(),
		Seq:        src.Seq,
		CapturedAt: src.CapturedAt,
	}, nil
}

var _ Resampler = (*GoCVResampler)(nil)
