// Package imaging resizes and encodes frames for the remote inference calls.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// ErrInvalidSize is returned for target dimensions below 1.
var ErrInvalidSize = errors.New("imaging: target size must be at least 1x1")

// ErrBackendUnavailable is returned when a resampler backend is not compiled in.
var ErrBackendUnavailable = errors.New("imaging: backend unavailable")

// Resampler scales a frame to an exact size. The returned frame is owned by
// the caller.
type Resampler interface {
	Resize(src *frame.Frame, w, h int) (*frame.Frame, error)
}

// Backend selects a Resampler implementation.
type Backend string

const (
	BackendAuto Backend = "auto"
	BackendCPU  Backend = "cpu"
	BackendGoCV Backend = "gocv"
)

// NewResampler returns the resampler for backend. BackendAuto prefers GoCV
// when the binary was built with the gocv tag.
func NewResampler(backend Backend) (Resampler, error) {
	switch backend {
	case BackendAuto, "":
		if r, err := newGoCVResampler(); err == nil {
			return r, nil
		}
		return NewCPUResampler(), nil
	case BackendCPU:
		return NewCPUResampler(), nil
	case BackendGoCV:
		return newGoCVResampler()
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// CPUResampler scales with bilinear interpolation from x/image/draw.
// Scratch rasters are reused between calls.
type CPUResampler struct {
	mu  sync.Mutex
	src *image.RGBA
	dst *image.RGBA
}

// NewCPUResampler creates a CPU resampler.
func NewCPUResampler() *CPUResampler {
	return &CPUResampler{}
}

// Resize implements Resampler.
func (r *CPUResampler) Resize(src *frame.Frame, w, h int) (*frame.Frame, error) {
	if w < 1 || h < 1 {
		return nil, ErrInvalidSize
	}
	if !src.Valid() {
		return nil, frame.ErrInvalidSize
	}

	out := &frame.Frame{
		Width:      w,
		Height:     h,
		Pix:        make([]uint8, frame.Len(w, h)),
		Seq:        src.Seq,
		CapturedAt: src.CapturedAt,
	}
	if w == src.Width && h == src.Height {
		copy(out.Pix, src.Pix)
		return out, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.src = src.ToRGBA(r.src)
	if r.dst == nil || r.dst.Rect.Dx() != w || r.dst.Rect.Dy() != h {
		r.dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.BiLinear.Scale(r.dst, r.dst.Rect, r.src, r.src.Rect, draw.Src, nil)

	out.CopyFrom(r.dst)
	return out, nil
}

var _ Resampler = (*CPUResampler)(nil)
