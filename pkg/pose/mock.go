package pose

import (
	"context"
	"sync"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc overrides the default behavior.
	DetectFunc func(ctx context.Context, f *frame.Frame) ([]Keypoint, error)

	// Keypoints are returned when DetectFunc is nil.
	Keypoints []Keypoint

	mu    sync.Mutex
	calls int
}

// Detect implements Detector.
func (m *Mock) Detect(ctx context.Context, f *frame.Frame) ([]Keypoint, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, f)
	}
	return m.Keypoints, nil
}

// CallCount returns the number of Detect calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RecordingSink records published keypoints.
type RecordingSink struct {
	mu      sync.Mutex
	batches [][]Keypoint
	seqs    []uint64
}

// PublishKeypoints implements Sink.
func (r *RecordingSink) PublishKeypoints(frameSeq uint64, keypoints []Keypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, keypoints)
	r.seqs = append(r.seqs, frameSeq)
}

// Count returns how many batches were published.
func (r *RecordingSink) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

// Last returns the most recent batch and its frame sequence.
func (r *RecordingSink) Last() (uint64, []Keypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return 0, nil
	}
	n := len(r.batches) - 1
	return r.seqs[n], r.batches[n]
}

var (
	_ Detector = (*Mock)(nil)
	_ Sink     = (*RecordingSink)(nil)
)
