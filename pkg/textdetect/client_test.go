package textdetect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/jpeg"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-lens/internal/log"
	"github.com/teslashibe/go-lens/pkg/frame"
)

func testFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New(8, 6)
	if err != nil {
		t.Fatal(err)
	}
	for i := range f.Pix {
		f.Pix[i] = uint8(i)
	}
	return f
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithEndpoint(url),
		WithAPIKey("test-key"),
		WithLogger(log.Discard()),
	}, opts...)
	c, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

const helloResponse = `{
  "responses": [{
    "textAnnotations": [{
      "locale": "en",
      "description": "HELLO",
      "boundingPoly": {"vertices": [{"x":10,"y":10},{"x":90,"y":10},{"x":90,"y":40},{"x":10,"y":40}]}
    }]
  }]
}`

func TestScanFrameHello(t *testing.T) {
	var (
		gotKey  string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		gotKey = r.URL.Query().Get("key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		jsonHandler(helloResponse)(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	results := c.ScanFrame(context.Background(), testFrame(t))

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Text != "HELLO" || r.LanguageCode != "en" {
		t.Errorf("unexpected result %+v", r)
	}
	want := []Point{{10, 10}, {90, 10}, {90, 40}, {10, 40}}
	for i, p := range want {
		if r.BoundingBox[i] != p {
			t.Errorf("vertex %d = %v, want %v", i, r.BoundingBox[i], p)
		}
	}

	if gotKey != "test-key" {
		t.Errorf("key = %q, want test-key", gotKey)
	}

	req := gotBody["requests"].([]any)[0].(map[string]any)
	feature := req["features"].([]any)[0].(map[string]any)
	if feature["type"] != "TEXT_DETECTION" {
		t.Errorf("feature type = %v", feature["type"])
	}

	content := req["image"].(map[string]any)["content"].(string)
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		t.Fatalf("content is not base64: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("content is not a JPEG: %v", err)
	}
	if cfg.Width != 4 || cfg.Height != 3 {
		t.Errorf("uploaded %dx%d, want 4x3 (factor 2)", cfg.Width, cfg.Height)
	}
}

func TestScanFramePolygonFilter(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`{"responses":[{"textAnnotations":[
		{"description":"A","boundingPoly":{"vertices":[{},{},{},{}]}},
		{"description":"B","boundingPoly":{"vertices":[{},{},{}]}},
		{"description":"C","boundingPoly":{"vertices":[{},{},{},{},{}]}},
		{"description":"D"}
	]}]}`))
	defer server.Close()

	c := newTestClient(t, server.URL)
	results := c.ScanFrame(context.Background(), testFrame(t))

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "A" || results[1].Text != "C" {
		t.Errorf("order not preserved: %q, %q", results[0].Text, results[1].Text)
	}
	for _, r := range results {
		if r.LanguageCode != UnknownLanguage {
			t.Errorf("missing locale should map to %q, got %q", UnknownLanguage, r.LanguageCode)
		}
	}
}

func TestScanFrameFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr func(error) bool
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":{"code":403,"message":"bad key"}}`))
			},
			wantErr: func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
			},
		},
		{
			name:    "malformed json",
			handler: jsonHandler(`{"responses": [`),
			wantErr: func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
		},
		{
			name:    "empty responses",
			handler: jsonHandler(`{"responses": []}`),
			wantErr: func(err error) bool { return errors.Is(err, ErrNoText) },
		},
		{
			name:    "empty first response",
			handler: jsonHandler(`{"responses": [{}]}`),
			wantErr: func(err error) bool { return errors.Is(err, ErrNoText) },
		},
		{
			name:    "per-image error",
			handler: jsonHandler(`{"responses": [{"error": {"code": 3, "message": "Bad image data."}}]}`),
			wantErr: func(err error) bool { return errors.Is(err, ErrRejected) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := newTestClient(t, server.URL)

			if got := c.ScanFrame(context.Background(), testFrame(t)); got != nil {
				t.Errorf("ScanFrame = %v, want nil", got)
			}
			if c.Busy() {
				t.Error("busy flag not reset")
			}

			_, err := c.Scan(context.Background(), testFrame(t))
			if !tt.wantErr(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestScanFrameLogsErrorClass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := newTestClient(t, server.URL, WithLogger(logger))

	if got := c.ScanFrame(context.Background(), testFrame(t)); got != nil {
		t.Fatalf("ScanFrame = %v, want nil", got)
	}
	out := buf.String()
	for _, want := range []string{"scan failed", "status=403", "unauthorized=true", "rate_limited=false"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}

func TestScanFrameFullTextOnly(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`{"responses":[{"fullTextAnnotation":{"text":"HELLO"}}]}`))
	defer server.Close()

	c := newTestClient(t, server.URL)
	results := c.ScanFrame(context.Background(), testFrame(t))

	if results == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestScanFrameTransportError(t *testing.T) {
	server := httptest.NewServer(jsonHandler(helloResponse))
	url := server.URL
	server.Close()

	c := newTestClient(t, url, WithTimeout(time.Second))
	if got := c.ScanFrame(context.Background(), testFrame(t)); got != nil {
		t.Errorf("ScanFrame = %v, want nil", got)
	}
	if c.Busy() {
		t.Error("busy flag not reset after transport error")
	}
}

func TestScanFrameInvalidFrame(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.Scan(context.Background(), nil); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
	if requests.Load() != 0 {
		t.Error("invalid frame must not reach the network")
	}
}

func TestScanFrameRejectsWhileBusy(t *testing.T) {
	var requests atomic.Int32
	arrived := make(chan struct{})
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			close(arrived)
			<-release
		}
		jsonHandler(helloResponse)(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	done := make(chan []Result)
	go func() {
		done <- c.ScanFrame(context.Background(), testFrame(t))
	}()

	<-arrived
	if !c.Busy() {
		t.Error("client should be busy while a request is in flight")
	}
	if got := c.ScanFrame(context.Background(), testFrame(t)); got != nil {
		t.Errorf("busy ScanFrame = %v, want nil", got)
	}
	if _, err := c.Scan(context.Background(), testFrame(t)); !errors.Is(err, ErrBusy) {
		t.Errorf("busy Scan error = %v, want ErrBusy", err)
	}

	close(release)
	if got := <-done; len(got) != 1 {
		t.Errorf("first call got %d results, want 1", len(got))
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}

	// The flag is clear again.
	if got := c.ScanFrame(context.Background(), testFrame(t)); len(got) != 1 {
		t.Errorf("follow-up call got %d results, want 1", len(got))
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(WithSampleFactor(0)); err == nil {
		t.Error("expected error for sample factor 0")
	}
	if _, err := NewClient(WithJPEGQuality(0)); err == nil {
		t.Error("expected error for quality 0")
	}
	if _, err := NewClient(WithEndpoint("")); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint, got %v", err)
	}

	c, err := NewClient(WithSampleFactor(3))
	if err != nil {
		t.Fatal(err)
	}
	if c.SampleFactor() != 3 {
		t.Errorf("SampleFactor = %d, want 3", c.SampleFactor())
	}
}

func TestResultRescale(t *testing.T) {
	r := Result{Text: "x", BoundingBox: []Point{{1, 2}, {3, 4}}}
	got := r.Rescale(2)

	if got.BoundingBox[1] != (Point{6, 8}) {
		t.Errorf("rescaled vertex = %v", got.BoundingBox[1])
	}
	if r.BoundingBox[1] != (Point{3, 4}) {
		t.Error("Rescale mutated the receiver")
	}
}
