package frame

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	// Decoders for ImageSource files.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Source produces frames. Implementations must be safe for concurrent use.
type Source interface {
	// Ready reports whether a current frame exists.
	Ready() bool

	// Size returns the current frame dimensions.
	Size() (width, height int)

	// ReadPixels copies the current frame into dst, which must be exactly
	// Len(Size()) bytes. The source's own buffer is never exposed.
	ReadPixels(dst []uint8) error

	// Stop halts capture. Subsequent Ready calls may return false.
	Stop() error
}

// Starter is implemented by sources that can resume after Stop.
type Starter interface {
	Start() error
}

// Sequencer is implemented by sources that number their frames.
type Sequencer interface {
	Seq() uint64
}

// Read copies the current frame of src into a newly allocated Frame without
// stopping the source.
func Read(src Source) (*Frame, error) {
	if !src.Ready() {
		return nil, ErrNoFrame
	}
	w, h := src.Size()
	f, err := New(w, h)
	if err != nil {
		return nil, err
	}
	if err := src.ReadPixels(f.Pix); err != nil {
		return nil, err
	}
	f.CapturedAt = time.Now()
	if s, ok := src.(Sequencer); ok {
		f.Seq = s.Seq()
	}
	return f, nil
}

// ImageSource serves a fixed image. Stop marks it not ready until Start.
type ImageSource struct {
	mu      sync.RWMutex
	frame   *Frame
	stopped bool
}

// NewImageSource wraps an in-memory image.
func NewImageSource(img image.Image) *ImageSource {
	f := FromImage(img)
	f.Seq = 1
	return &ImageSource{frame: f}
}

// OpenImage decodes a JPEG, PNG, BMP or WebP file into an ImageSource.
func OpenImage(path string) (*ImageSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return NewImageSource(img), nil
}

// Ready implements Source.
func (s *ImageSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped && s.frame != nil
}

// Size implements Source.
func (s *ImageSource) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.Width, s.frame.Height
}

// ReadPixels implements Source.
func (s *ImageSource) ReadPixels(dst []uint8) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrNoFrame
	}
	if len(dst) != len(s.frame.Pix) {
		return fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(dst), len(s.frame.Pix))
	}
	copy(dst, s.frame.Pix)
	return nil
}

// Seq implements Sequencer.
func (s *ImageSource) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.Seq
}

// Stop implements Source.
func (s *ImageSource) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// Start implements Starter.
func (s *ImageSource) Start() error {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
	return nil
}

var (
	_ Source    = (*ImageSource)(nil)
	_ Starter   = (*ImageSource)(nil)
	_ Sequencer = (*ImageSource)(nil)
)
