package frame

import (
	"sync"
	"time"
)

// Mock implements Source for testing. Every method is recorded.
type Mock struct {
	// Frame is served by ReadPixels. Nil means not ready.
	Frame *Frame

	// StopErr is returned by Stop.
	StopErr error

	mu      sync.Mutex
	stopped bool
	calls   []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock returns a ready mock serving a w x h frame filled with fill.
func NewMock(w, h int, fill uint8) *Mock {
	f, _ := New(w, h)
	for i := range f.Pix {
		f.Pix[i] = fill
	}
	f.Seq = 1
	return &Mock{Frame: f}
}

// Ready implements Source.
func (m *Mock) Ready() bool {
	m.record("Ready")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Frame != nil && !m.stopped
}

// Size implements Source.
func (m *Mock) Size() (int, int) {
	m.record("Size")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Frame == nil {
		return 0, 0
	}
	return m.Frame.Width, m.Frame.Height
}

// ReadPixels implements Source.
func (m *Mock) ReadPixels(dst []uint8) error {
	m.record("ReadPixels")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Frame == nil {
		return ErrNoFrame
	}
	if len(dst) != len(m.Frame.Pix) {
		return ErrSizeMismatch
	}
	copy(dst, m.Frame.Pix)
	return nil
}

// Seq implements Sequencer.
func (m *Mock) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Frame == nil {
		return 0
	}
	return m.Frame.Seq
}

// Stop implements Source.
func (m *Mock) Stop() error {
	m.record("Stop")
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return m.StopErr
}

// Start implements Starter.
func (m *Mock) Start() error {
	m.record("Start")
	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()
	return nil
}

// Stopped reports whether Stop was called since the last Start.
func (m *Mock) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
	m.mu.Unlock()
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

var (
	_ Source    = (*Mock)(nil)
	_ Starter   = (*Mock)(nil)
	_ Sequencer = (*Mock)(nil)
)
