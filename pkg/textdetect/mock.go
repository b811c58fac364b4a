package textdetect

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-lens/pkg/frame"
)

// Mock stands in for Client in tests.
type Mock struct {
	// ScanFunc is called when ScanFrame is invoked.
	ScanFunc func(ctx context.Context, f *frame.Frame) []Result

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
	Frame  *frame.Frame
}

// NewMock returns a mock that always detects results.
func NewMock(results ...Result) *Mock {
	return &Mock{
		ScanFunc: func(ctx context.Context, f *frame.Frame) []Result {
			return results
		},
	}
}

// ScanFrame calls ScanFunc and records the call.
func (m *Mock) ScanFrame(ctx context.Context, f *frame.Frame) []Result {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "ScanFrame", Time: time.Now(), Frame: f})
	m.mu.Unlock()

	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, f)
	}
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of ScanFrame calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
