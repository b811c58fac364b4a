package pose

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// Sink receives keypoints for a frame.
type Sink interface {
	PublishKeypoints(frameSeq uint64, keypoints []Keypoint)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frameSeq uint64, keypoints []Keypoint)

// PublishKeypoints implements Sink.
func (f SinkFunc) PublishKeypoints(frameSeq uint64, keypoints []Keypoint) {
	f(frameSeq, keypoints)
}

// MultiSink fans keypoints out to every sink.
type MultiSink []Sink

// PublishKeypoints implements Sink.
func (m MultiSink) PublishKeypoints(frameSeq uint64, keypoints []Keypoint) {
	for _, s := range m {
		s.PublishKeypoints(frameSeq, keypoints)
	}
}

// TrackerStats counts loop outcomes.
type TrackerStats struct {
	Enabled   bool   `json:"enabled"`
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

// Tracker runs pose detection continuously while enabled. Frames are read
// without stopping the source, so scans and tracking can share a camera.
type Tracker struct {
	source   frame.Source
	detector Detector
	sink     Sink
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu      sync.Mutex
	enabled bool
	wake    chan struct{}

	published atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// NewTracker creates a disabled tracker limited to maxFPS detections per
// second.
func NewTracker(src frame.Source, d Detector, sink Sink, maxFPS float64, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFPS <= 0 {
		maxFPS = 10
	}
	return &Tracker{
		source:   src,
		detector: d,
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Limit(maxFPS), 1),
		logger:   logger.With("component", "pose.tracker"),
		wake:     make(chan struct{}, 1),
	}
}

// Enabled reports whether tracking is on.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled turns tracking on or off.
func (t *Tracker) SetEnabled(on bool) {
	t.mu.Lock()
	changed := t.enabled != on
	t.enabled = on
	t.mu.Unlock()

	if changed {
		t.changed(on)
	}
}

// Toggle flips tracking and returns the new value.
func (t *Tracker) Toggle() bool {
	t.mu.Lock()
	t.enabled = !t.enabled
	on := t.enabled
	t.mu.Unlock()

	t.changed(on)
	return on
}

func (t *Tracker) changed(on bool) {
	t.logger.Info("pose tracking", "enabled", on)
	if on {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
}

// Stats returns loop counters.
func (t *Tracker) Stats() TrackerStats {
	return TrackerStats{
		Enabled:   t.Enabled(),
		Published: t.published.Load(),
		Skipped:   t.skipped.Load(),
		Failed:    t.failed.Load(),
	}
}

// Run loops until ctx is done. While disabled it blocks until SetEnabled.
func (t *Tracker) Run(ctx context.Context) {
	for {
		if !t.Enabled() {
			select {
			case <-ctx.Done():
				return
			case <-t.wake:
				continue
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return
		}
		if !t.Enabled() {
			continue
		}
		t.Step(ctx)
	}
}

// Step runs one detection and publishes the result. Failures are logged.
func (t *Tracker) Step(ctx context.Context) {
	f, err := frame.Read(t.source)
	if err != nil {
		t.skipped.Add(1)
		return
	}

	kps, err := t.detector.Detect(ctx, f)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		t.skipped.Add(1)
		return
	case ctx.Err() != nil:
		return
	default:
		t.failed.Add(1)
		t.logger.Warn("pose detection failed", "error", err)
		return
	}

	t.published.Add(1)
	t.sink.PublishKeypoints(f.Seq, kps)
}
