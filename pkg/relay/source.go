package relay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-lens/pkg/frame"
	"github.com/teslashibe/go-lens/pkg/protocol"
)

// Source is the latest frame a device streamed. Stop discards it and asks
// the headset to stop its camera; Start asks it to resume.
type Source struct {
	hub      *Hub
	deviceID string

	mu      sync.RWMutex
	frame   *frame.Frame
	seq     uint64
	stopped bool
}

func newSource(h *Hub, deviceID string) *Source {
	return &Source{hub: h, deviceID: deviceID}
}

// DeviceID returns the device this source reads from.
func (s *Source) DeviceID() string {
	return s.deviceID
}

// Capturing reports whether frames are being accepted.
func (s *Source) Capturing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped
}

// update decodes an incoming frame. Frames arriving while stopped are
// dropped.
func (s *Source) update(fd *protocol.FrameData) error {
	if !s.Capturing() {
		return nil
	}

	data, err := fd.DecodeFrameData()
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", fd.Format, err)
	}

	b := img.Bounds()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.frame == nil || s.frame.Width != b.Dx() || s.frame.Height != b.Dy() {
		s.frame = frame.FromImage(img)
	} else {
		s.frame.CopyFrom(img)
	}
	if fd.FrameID > 0 {
		s.seq = fd.FrameID
	} else {
		s.seq++
	}
	s.frame.Seq = s.seq
	s.frame.CapturedAt = time.Now()
	return nil
}

// Ready implements frame.Source.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped && s.frame != nil
}

// Size implements frame.Source.
func (s *Source) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	return s.frame.Width, s.frame.Height
}

// ReadPixels implements frame.Source.
func (s *Source) ReadPixels(dst []uint8) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped || s.frame == nil {
		return frame.ErrNoFrame
	}
	if len(dst) != len(s.frame.Pix) {
		return fmt.Errorf("%w: got %d, want %d", frame.ErrSizeMismatch, len(dst), len(s.frame.Pix))
	}
	copy(dst, s.frame.Pix)
	return nil
}

// Seq implements frame.Sequencer.
func (s *Source) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Stop implements frame.Source. A disconnected device gets the command on
// reconnect.
func (s *Source) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.frame = nil
	s.mu.Unlock()
	return s.command(false)
}

// Start implements frame.Starter.
func (s *Source) Start() error {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
	return s.command(true)
}

func (s *Source) command(active bool) error {
	err := s.hub.SendCapture(s.deviceID, active)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

var (
	_ frame.Source    = (*Source)(nil)
	_ frame.Starter   = (*Source)(nil)
	_ frame.Sequencer = (*Source)(nil)
)
