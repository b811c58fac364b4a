package pipeline

import (
	"sync"

	"github.com/teslashibe/go-lens/pkg/textdetect"
)

// DisplayCall records one display update.
type DisplayCall struct {
	Method string
	Text   string
}

// RecordingDisplay records every update in order. Used in tests.
type RecordingDisplay struct {
	mu         sync.Mutex
	calls      []DisplayCall
	detections []textdetect.Result
	detected   string
	translated string
}

// SetDetectedText implements Display.
func (r *RecordingDisplay) SetDetectedText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = text
	r.calls = append(r.calls, DisplayCall{Method: "SetDetectedText", Text: text})
}

// SetTranslatedText implements Display.
func (r *RecordingDisplay) SetTranslatedText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translated = text
	r.calls = append(r.calls, DisplayCall{Method: "SetTranslatedText", Text: text})
}

// SetDetections implements DetectionsDisplay.
func (r *RecordingDisplay) SetDetections(results []textdetect.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections = results
	r.calls = append(r.calls, DisplayCall{Method: "SetDetections"})
}

// Texts returns the current detected and translated strings.
func (r *RecordingDisplay) Texts() (detected, translated string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detected, r.translated
}

// Detections returns the last polygons shown.
func (r *RecordingDisplay) Detections() []textdetect.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detections
}

// Calls returns all recorded calls.
func (r *RecordingDisplay) Calls() []DisplayCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]DisplayCall, len(r.calls))
	copy(result, r.calls)
	return result
}

var (
	_ Display           = (*RecordingDisplay)(nil)
	_ DetectionsDisplay = (*RecordingDisplay)(nil)
)
