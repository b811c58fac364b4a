package frame

import (
	"sync"
	"time"
)

// Snapshotter owns a reusable capture buffer. The frame returned by Capture
// is overwritten by the next call; Clone it to keep it.
type Snapshotter struct {
	mu  sync.Mutex
	buf *Frame
}

// Capture copies the current frame of src into the reusable buffer and then
// stops src. The buffer is reallocated only when the source size changes.
func (s *Snapshotter) Capture(src Source) (*Frame, error) {
	f, err := s.copy(src)
	if err != nil {
		return nil, err
	}
	if err := src.Stop(); err != nil {
		return f, err
	}
	return f, nil
}

// Peek is Capture without stopping the source.
func (s *Snapshotter) Peek(src Source) (*Frame, error) {
	return s.copy(src)
}

func (s *Snapshotter) copy(src Source) (*Frame, error) {
	if !src.Ready() {
		return nil, ErrNoFrame
	}
	w, h := src.Size()
	if w < 1 || h < 1 {
		return nil, ErrNoFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil || s.buf.Width != w || s.buf.Height != h {
		s.buf = &Frame{Width: w, Height: h, Pix: make([]uint8, Len(w, h))}
	}
	if err := src.ReadPixels(s.buf.Pix); err != nil {
		return nil, err
	}
	s.buf.CapturedAt = time.Now()
	s.buf.Seq = 0
	if sq, ok := src.(Sequencer); ok {
		s.buf.Seq = sq.Seq()
	}
	return s.buf, nil
}
