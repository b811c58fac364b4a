// Package textdetect detects text in frames with the Cloud Vision
// TEXT_DETECTION feature.
package textdetect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	vision "google.golang.org/api/vision/v1"

	"github.com/teslashibe/go-lens/internal/httpc"
	"github.com/teslashibe/go-lens/pkg/frame"
	"github.com/teslashibe/go-lens/pkg/imaging"
)

const (
	provider    = "vision"
	featureText = "TEXT_DETECTION"
)

var tracer = otel.Tracer("github.com/teslashibe/go-lens/pkg/textdetect")

// Client sends frames to the text-detection endpoint. At most one request
// is in flight; calls made while busy are rejected, not queued.
type Client struct {
	url    string
	config *Config
	pre    *imaging.Preprocessor
	http   *http.Client
	logger *slog.Logger

	busy atomic.Bool
}

// NewClient creates a new text-detection client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	url, err := httpc.WithKey(cfg.Endpoint, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("textdetect: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		url:    url,
		config: cfg,
		pre:    imaging.NewPreprocessor(cfg.Resampler),
		http:   hc,
		logger: cfg.Logger.With("component", "textdetect.client"),
	}, nil
}

// SampleFactor is the divisor applied to both frame dimensions before upload.
func (c *Client) SampleFactor() int {
	return c.config.SampleFactor
}

// Busy reports whether a request is in flight.
func (c *Client) Busy() bool {
	return c.busy.Load()
}

// ScanFrame detects text in f. It returns nil when the client is busy and
// on every failure; failures are logged. A non-nil empty slice means the
// response had annotations but none with a usable polygon.
func (c *Client) ScanFrame(ctx context.Context, f *frame.Frame) (results []Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("scan panicked", "panic", r)
			results = nil
		}
	}()

	results, err := c.Scan(ctx, f)
	switch {
	case err == nil:
		return results
	case errors.Is(err, ErrBusy):
		c.logger.Debug("scan skipped, request in flight")
	case errors.Is(err, ErrNoText):
		c.logger.Debug("no text in response")
	default:
		c.logger.Warn("scan failed", httpc.ErrorAttrs(err)...)
	}
	return nil
}

// Scan is ScanFrame with the failure exposed.
func (c *Client) Scan(ctx context.Context, f *frame.Frame) ([]Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	ctx, span := tracer.Start(ctx, "textdetect.Scan", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	results, err := c.scan(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("textdetect.results", len(results)))
	c.logger.Debug("scan complete",
		"results", len(results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func (c *Client) scan(ctx context.Context, f *frame.Frame) ([]Result, error) {
	if !f.Valid() {
		return nil, ErrInvalidFrame
	}

	small, err := c.pre.DownsampleBy(f, c.config.SampleFactor)
	if err != nil {
		return nil, fmt.Errorf("textdetect: downsample: %w", err)
	}
	enc, err := imaging.Encode(small, imaging.FormatJPEG, c.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("textdetect: %w", err)
	}

	payload := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: imaging.EncodeBase64(enc)},
			Features: []*vision.Feature{{Type: featureText}},
		}},
	}

	resp, err := httpc.PostJSON(ctx, c.http, c.url, payload)
	if err != nil {
		return nil, fmt.Errorf("textdetect: request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpc.CheckResponse(provider, resp); err != nil {
		return nil, err
	}

	var body vision.BatchAnnotateImagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return parseResponse(&body)
}

// parseResponse maps the first image response to Results, skipping
// annotations whose polygon has fewer than four vertices.
func parseResponse(body *vision.BatchAnnotateImagesResponse) ([]Result, error) {
	if len(body.Responses) == 0 || body.Responses[0] == nil {
		return nil, ErrNoText
	}
	first := body.Responses[0]

	if st := first.Error; st != nil && (st.Code != 0 || st.Message != "") {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrRejected, st.Message, st.Code)
	}
	if len(first.TextAnnotations) == 0 && first.FullTextAnnotation == nil {
		return nil, ErrNoText
	}

	results := make([]Result, 0, len(first.TextAnnotations))
	for _, ann := range first.TextAnnotations {
		if ann == nil || ann.BoundingPoly == nil || len(ann.BoundingPoly.Vertices) < 4 {
			continue
		}

		box := make([]Point, len(ann.BoundingPoly.Vertices))
		for i, v := range ann.BoundingPoly.Vertices {
			if v != nil {
				box[i] = Point{X: int(v.X), Y: int(v.Y)}
			}
		}

		lang := ann.Locale
		if lang == "" {
			lang = UnknownLanguage
		}

		results = append(results, Result{
			Text:         ann.Description,
			BoundingBox:  box,
			LanguageCode: lang,
		})
	}
	return results, nil
}
