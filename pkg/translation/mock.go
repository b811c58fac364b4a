package translation

import (
	"context"
	"sync"
	"time"
)

// Mock stands in for Client in tests.
type Mock struct {
	// TranslateFunc is called when Translate is invoked.
	TranslateFunc func(ctx context.Context, text, sourceLanguage string) string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method         string
	Time           time.Time
	Text           string
	SourceLanguage string
}

// NewMock returns a mock that prefixes text with "[target] ".
func NewMock(target string) *Mock {
	return &Mock{
		TranslateFunc: func(ctx context.Context, text, sourceLanguage string) string {
			if text == "" {
				return ""
			}
			return "[" + target + "] " + text
		},
	}
}

// Translate calls TranslateFunc and records the call.
func (m *Mock) Translate(ctx context.Context, text, sourceLanguage string) string {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		Method:         "Translate",
		Time:           time.Now(),
		Text:           text,
		SourceLanguage: sourceLanguage,
	})
	m.mu.Unlock()

	if m.TranslateFunc != nil {
		return m.TranslateFunc(ctx, text, sourceLanguage)
	}
	return text
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Translate calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
