// Package pipeline runs the capture, detect and translate sequence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/teslashibe/go-lens/pkg/frame"
	"github.com/teslashibe/go-lens/pkg/textdetect"
)

var (
	// ErrBusy is returned by Run when a run is already in progress.
	ErrBusy = errors.New("pipeline: run in progress")

	// ErrNoFrame is returned when the source has no frame to capture.
	ErrNoFrame = frame.ErrNoFrame
)

var tracer = otel.Tracer("github.com/teslashibe/go-lens/pkg/pipeline")

// Scanner detects text in a frame. Nil or empty means nothing was found.
type Scanner interface {
	ScanFrame(ctx context.Context, f *frame.Frame) []textdetect.Result
}

// Translator translates text, returning the input on failure.
type Translator interface {
	Translate(ctx context.Context, text, sourceLanguage string) string
}

// Run records one pass through the pipeline.
type Run struct {
	ID             string              `json:"id"`
	StartedAt      time.Time           `json:"started_at"`
	Duration       time.Duration       `json:"duration_ns"`
	Outcome        Outcome             `json:"outcome"`
	FrameWidth     int                 `json:"frame_width,omitempty"`
	FrameHeight    int                 `json:"frame_height,omitempty"`
	FrameSeq       uint64              `json:"frame_seq,omitempty"`
	Detections     []textdetect.Result `json:"detections,omitempty"`
	DetectedText   string              `json:"detected_text"`
	SourceLanguage string              `json:"source_language,omitempty"`
	TranslatedText string              `json:"translated_text"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStateListener is called after every state change with the state
// current at delivery. Calls are serialized and the last call always carries
// the latest state. The listener must not trigger runs.
func WithStateListener(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// WithRunListener is called with every finished run.
func WithRunListener(fn func(*Run)) Option {
	return func(o *Orchestrator) { o.onRun = fn }
}

// Orchestrator owns the capture buffer and the run state. At most one run is
// active; triggers in any other state are ignored.
type Orchestrator struct {
	source     frame.Source
	scanner    Scanner
	translator Translator
	display    Display
	snap       frame.Snapshotter

	logger  *slog.Logger
	onState func(State)
	onRun   func(*Run)

	mu    sync.Mutex
	state State
	last  *Run

	notifyMu sync.Mutex
}

// New creates an orchestrator.
func New(src frame.Source, scanner Scanner, translator Translator, display Display, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     src,
		scanner:    scanner,
		translator: translator,
		display:    display,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "pipeline")
	return o
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastRun returns the most recent finished run, or nil.
func (o *Orchestrator) LastRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Source returns the frame source.
func (o *Orchestrator) Source() frame.Source {
	return o.source
}

// Trigger starts a run in the background and reports whether it started.
// ctx must outlive the caller; it bounds the remote calls only.
func (o *Orchestrator) Trigger(ctx context.Context) bool {
	if !o.begin() {
		o.logger.Debug("trigger ignored", "state", o.State())
		return false
	}

	go func() {
		defer o.setState(StateIdle)
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("run panicked", "panic", r)
			}
		}()
		if _, err := o.run(ctx); err != nil {
			o.logger.Warn("run failed", "error", err)
		}
	}()
	return true
}

// Run executes one pass synchronously.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	if !o.begin() {
		return nil, ErrBusy
	}
	defer o.setState(StateIdle)
	return o.run(ctx)
}

// StartCapture resumes a stopped source when it supports it.
func (o *Orchestrator) StartCapture() error {
	s, ok := o.source.(frame.Starter)
	if !ok {
		return fmt.Errorf("pipeline: source %T cannot be restarted", o.source)
	}
	return s.Start()
}

// begin is the only transition out of Idle.
func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return false
	}
	o.state = StateCapturing
	o.mu.Unlock()

	o.notify()
	return true
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.notify()
}

// notify reads the state under notifyMu so a transition that lands while an
// older one is still being delivered is never overwritten by it.
func (o *Orchestrator) notify() {
	if o.onState == nil {
		return
	}
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.onState(o.State())
}

func (o *Orchestrator) run(ctx context.Context) (*Run, error) {
	rec := &Run{ID: uuid.NewString(), StartedAt: time.Now()}
	logger := o.logger.With("run_id", rec.ID)

	ctx, span := tracer.Start(ctx, "pipeline.Run")
	span.SetAttributes(attribute.String("run.id", rec.ID))
	defer span.End()

	defer func() {
		rec.Duration = time.Since(rec.StartedAt)
		span.SetAttributes(attribute.String("run.outcome", string(rec.Outcome)))
		o.mu.Lock()
		o.last = rec
		o.mu.Unlock()
		if o.onRun != nil {
			o.onRun(rec)
		}
	}()

	f, err := o.snap.Capture(o.source)
	if f == nil {
		rec.Outcome = OutcomeNoFrame
		if err == nil {
			err = ErrNoFrame
		}
		span.SetStatus(codes.Error, err.Error())
		return rec, err
	}
	if err != nil {
		logger.Warn("source did not stop cleanly", "error", err)
	}
	rec.FrameWidth, rec.FrameHeight, rec.FrameSeq = f.Width, f.Height, f.Seq

	o.setState(StateDetecting)
	results := o.scanner.ScanFrame(ctx, f)
	o.showDetections(results)

	if len(results) == 0 {
		rec.Outcome = OutcomeNoText
		rec.DetectedText = NoTextMessage
		o.display.SetDetectedText(NoTextMessage)
		o.display.SetTranslatedText("")
		logger.Info("no text detected")
		return rec, nil
	}

	primary := results[0]
	rec.Detections = results
	rec.DetectedText = primary.Text
	rec.SourceLanguage = primary.LanguageCode
	o.display.SetDetectedText(primary.Text)

	o.setState(StateTranslating)
	rec.TranslatedText = o.translator.Translate(ctx, primary.Text, primary.LanguageCode)
	o.display.SetTranslatedText(rec.TranslatedText)
	rec.Outcome = OutcomeTranslated

	logger.Info("run complete",
		"detections", len(results),
		"source_language", primary.LanguageCode,
	)
	return rec, nil
}

func (o *Orchestrator) showDetections(results []textdetect.Result) {
	if dd, ok := o.display.(DetectionsDisplay); ok {
		dd.SetDetections(results)
	}
}
