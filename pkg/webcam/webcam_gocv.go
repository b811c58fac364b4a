//go:build gocv

package webcam

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lens/pkg/camera"
	"github.com/teslashibe/go-lens/pkg/frame"
)

// source runs a capture loop and keeps the most recent frame.
type source struct {
	device int
	logger *slog.Logger

	mu      sync.RWMutex
	cam     camera.Config
	latest  *frame.Frame
	seq     uint64
	running bool
	done    chan struct{}
	exited  chan struct{}
}

// Open starts capturing from cfg.Device.
func Open(cfg Config) (Camera, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &source{
		device: cfg.Device,
		cam:    cfg.Camera,
		logger: cfg.Logger.With("component", "webcam", "device", cfg.Device),
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start implements frame.Starter.
func (s *source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(s.device)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrOpen, s.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w %d", ErrOpen, s.device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(s.cam.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(s.cam.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(s.cam.Framerate))

	s.running = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	go s.loop(vc, s.done, s.exited)

	s.logger.Info("webcam started", "width", s.cam.Width, "height", s.cam.Height)
	return nil
}

func (s *source) loop(vc *gocv.VideoCapture, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	defer vc.Close()

	img := gocv.NewMat()
	defer img.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()

	misses := 0
	for {
		select {
		case <-done:
			return
		default:
		}

		if ok := vc.Read(&img); !ok || img.Empty() {
			misses++
			if misses == 30 {
				s.logger.Warn("webcam returned no frames")
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)
		s.store(rgb.Cols(), rgb.Rows(), rgb.ToBytes())
	}
}

func (s *source) store(w, h int, pix []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || len(pix) != frame.Len(w, h) {
		return
	}
	s.seq++
	s.latest = &frame.Frame{Width: w, Height: h, Pix: pix, Seq: s.seq, CapturedAt: time.Now()}
}

// Stop implements frame.Source. The device is released.
func (s *source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.latest = nil
	done, exited := s.done, s.exited
	s.mu.Unlock()

	close(done)
	<-exited
	return nil
}

// Close implements Camera.
func (s *source) Close() error {
	return s.Stop()
}

// ApplyCamera implements Camera.
func (s *source) ApplyCamera(cfg camera.Config) error {
	s.mu.Lock()
	s.cam = cfg
	running := s.running
	s.mu.Unlock()

	if !running {
		return nil
	}
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start()
}

// Ready implements frame.Source.
func (s *source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && s.latest != nil
}

// Size implements frame.Source.
func (s *source) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return 0, 0
	}
	return s.latest.Width, s.latest.Height
}

// ReadPixels implements frame.Source.
func (s *source) ReadPixels(dst []uint8) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running || s.latest == nil {
		return frame.ErrNoFrame
	}
	if len(dst) != len(s.latest.Pix) {
		return fmt.Errorf("%w: got %d, want %d", frame.ErrSizeMismatch, len(dst), len(s.latest.Pix))
	}
	copy(dst, s.latest.Pix)
	return nil
}

// Seq implements frame.Sequencer.
func (s *source) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

var _ Camera = (*source)(nil)
