// Package pose estimates body keypoints with a remote /detect service and
// streams them to a sink while tracking is enabled.
package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-lens/internal/httpc"
	"github.com/teslashibe/go-lens/pkg/frame"
	"github.com/teslashibe/go-lens/pkg/imaging"
)

const provider = "pose"

var tracer = otel.Tracer("github.com/teslashibe/go-lens/pkg/pose")

// Keypoint is one landmark. X and Y are pixels in the uploaded image,
// Z is relative depth.
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Detector finds keypoints in a frame.
type Detector interface {
	Detect(ctx context.Context, f *frame.Frame) ([]Keypoint, error)
}

// detectResponse is {"keypoints": [[x, y, z], ...]}.
type detectResponse struct {
	Keypoints [][]float64 `json:"keypoints"`
	Error     string      `json:"error,omitempty"`
}

// Client posts frames to a pose service. Like the text detector it
// rejects calls while a request is in flight.
type Client struct {
	config *Config
	pre    *imaging.Preprocessor
	http   *http.Client
	logger *slog.Logger

	busy atomic.Bool
}

// NewClient creates a new pose client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		config: cfg,
		pre:    imaging.NewPreprocessor(cfg.Resampler),
		http:   hc,
		logger: cfg.Logger.With("component", "pose.client"),
	}, nil
}

// Detect resizes f, uploads it as image.jpg and returns the keypoints.
func (c *Client) Detect(ctx context.Context, f *frame.Frame) ([]Keypoint, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	ctx, span := tracer.Start(ctx, "pose.Detect", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	kps, err := c.detect(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("pose.keypoints", len(kps)))
	c.logger.Debug("pose detected",
		"keypoints", len(kps),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return kps, nil
}

func (c *Client) detect(ctx context.Context, f *frame.Frame) ([]Keypoint, error) {
	if !f.Valid() {
		return nil, ErrInvalidFrame
	}

	small, err := c.pre.Downsample(f, c.config.Width, c.config.Height)
	if err != nil {
		return nil, fmt.Errorf("pose: resize: %w", err)
	}
	enc, err := imaging.Encode(small, imaging.FormatJPEG, c.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("pose: %w", err)
	}

	body, contentType, err := multipartImage(enc.Data)
	if err != nil {
		return nil, fmt.Errorf("pose: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("pose: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pose: request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpc.CheckResponse(provider, resp); err != nil {
		return nil, err
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Error != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: out.Error, Provider: provider}
	}

	kps := make([]Keypoint, 0, len(out.Keypoints))
	for _, p := range out.Keypoints {
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: keypoint with %d values", ErrMalformedResponse, len(p))
		}
		kp := Keypoint{X: p[0], Y: p[1]}
		if len(p) > 2 {
			kp.Z = p[2]
		}
		kps = append(kps, kp)
	}
	return kps, nil
}

// multipartImage builds a form with the JPEG in the "file" field.
func multipartImage(jpegData []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return nil, "", fmt.Errorf("write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var _ Detector = (*Client)(nil)
