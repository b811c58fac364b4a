package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-lens/internal/log"
	"github.com/teslashibe/go-lens/pkg/camera"
	"github.com/teslashibe/go-lens/pkg/pipeline"
	"github.com/teslashibe/go-lens/pkg/pose"
	"github.com/teslashibe/go-lens/pkg/textdetect"
)

type fakePipeline struct {
	busy     atomic.Bool
	triggers atomic.Int32
	last     *pipeline.Run
	startErr error
}

func (f *fakePipeline) State() pipeline.State {
	if f.busy.Load() {
		return pipeline.StateDetecting
	}
	return pipeline.StateIdle
}

func (f *fakePipeline) LastRun() *pipeline.Run { return f.last }

func (f *fakePipeline) Trigger(ctx context.Context) bool {
	if !f.busy.CompareAndSwap(false, true) {
		return false
	}
	f.triggers.Add(1)
	return true
}

func (f *fakePipeline) StartCapture() error { return f.startErr }

type fakeTracker struct {
	enabled bool
}

func (f *fakeTracker) Toggle() bool {
	f.enabled = !f.enabled
	return f.enabled
}

func (f *fakeTracker) Enabled() bool { return f.enabled }

func (f *fakeTracker) Stats() pose.TrackerStats {
	return pose.TrackerStats{Enabled: f.enabled}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, Config{Logger: log.Discard()})
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestScanEndpoint(t *testing.T) {
	s := newTestServer(t)

	t.Run("no pipeline", func(t *testing.T) {
		resp, _ := doRequest(t, s, http.MethodPost, "/api/scan", "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})

	p := &fakePipeline{}
	s.SetPipeline(p)

	t.Run("starts a run", func(t *testing.T) {
		resp, _ := doRequest(t, s, http.MethodPost, "/api/scan", "")
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("status = %d, want 202", resp.StatusCode)
		}
	})

	t.Run("busy", func(t *testing.T) {
		resp, body := doRequest(t, s, http.MethodPost, "/api/scan", "")
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
		if !strings.Contains(string(body), "detecting") {
			t.Errorf("body should report state: %s", body)
		}
	})

	if p.triggers.Load() != 1 {
		t.Errorf("triggers = %d, want 1", p.triggers.Load())
	}
}

func TestLastRunEndpoint(t *testing.T) {
	s := newTestServer(t)
	p := &fakePipeline{}
	s.SetPipeline(p)

	resp, _ := doRequest(t, s, http.MethodGet, "/api/runs/last", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	p.last = &pipeline.Run{ID: "run-1", Outcome: pipeline.OutcomeTranslated, DetectedText: "HELLO", TranslatedText: "HOLA"}
	resp, body := doRequest(t, s, http.MethodGet, "/api/runs/last", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var run pipeline.Run
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatal(err)
	}
	if run.ID != "run-1" || run.TranslatedText != "HOLA" {
		t.Errorf("run = %+v", run)
	}
}

func TestCaptureStartEndpoint(t *testing.T) {
	s := newTestServer(t)
	p := &fakePipeline{}
	s.SetPipeline(p)

	resp, _ := doRequest(t, s, http.MethodPost, "/api/capture/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	p.startErr = errors.New("camera gone")
	resp, body := doRequest(t, s, http.MethodPost, "/api/capture/start", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(string(body), "camera gone") {
		t.Errorf("body = %s", body)
	}
}

func TestPoseToggleEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, _ := doRequest(t, s, http.MethodPost, "/api/pose/toggle", "")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}

	s.SetTracker(&fakeTracker{})
	resp, body := doRequest(t, s, http.MethodPost, "/api/pose/toggle", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"enabled":true`) {
		t.Errorf("body = %s", body)
	}
	if !s.Status().PoseEnabled {
		t.Error("status should report pose enabled")
	}
}

func TestCameraEndpoints(t *testing.T) {
	s := newTestServer(t)
	m := camera.NewManager(camera.DefaultConfig())
	s.SetCamera(m)

	var pushed []camera.Config
	m.OnConfigChange(func(c camera.Config) error {
		pushed = append(pushed, c)
		return nil
	})

	resp, body := doRequest(t, s, http.MethodGet, "/api/camera", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"1080p"`) {
		t.Errorf("presets missing: %s", body)
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(camera.Config) bool
	}{
		{"preset", `{"preset":"480p"}`, http.StatusOK, func(c camera.Config) bool { return c.Width == 640 && c.Preset == "480p" }},
		{"override", `{"quality":50}`, http.StatusOK, func(c camera.Config) bool { return c.Quality == 50 && c.Preset == "" }},
		{"unknown preset", `{"preset":"8k"}`, http.StatusBadRequest, nil},
		{"out of range", `{"framerate":500}`, http.StatusBadRequest, nil},
		{"bad json", `{`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, s, http.MethodPut, "/api/camera", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.check != nil && !tt.check(m.GetConfig()) {
				t.Errorf("config = %+v", m.GetConfig())
			}
		})
	}

	if len(pushed) != 2 {
		t.Errorf("listener calls = %d, want 2", len(pushed))
	}
}

func TestStatusTracksDisplayUpdates(t *testing.T) {
	s := newTestServer(t)

	s.SetState(pipeline.StateTranslating)
	s.SetDetections([]textdetect.Result{{Text: "HELLO"}})
	s.SetDetectedText("HELLO")
	s.SetTranslatedText("HOLA")

	resp, body := doRequest(t, s, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "translating" || st.DetectedText != "HELLO" || st.TranslatedText != "HOLA" {
		t.Errorf("status = %+v", st)
	}
	if len(st.Detections) != 1 {
		t.Errorf("detections = %v", st.Detections)
	}

	s.SetDetections(nil)
	if s.Status().Detections == nil {
		t.Error("cleared detections should encode as an empty list")
	}
}

func TestLogsEndpoint(t *testing.T) {
	buf := NewLogBuffer(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, Config{Logger: log.Discard(), Logs: buf})

	logger := slog.New(buf.Handler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo))
	logger.With("component", "pipeline").Info("scan finished")
	logger.Debug("hidden")

	resp, body := doRequest(t, s, http.MethodGet, "/api/logs", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entries []LogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Component != "pipeline" || entries[0].Message != "scan finished" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestLogBufferEvicts(t *testing.T) {
	buf := NewLogBuffer(2)
	for _, m := range []string{"a", "b", "c"} {
		buf.Add(LogEntry{Message: m})
	}
	entries := buf.Entries()
	if len(entries) != 2 || entries[0].Message != "b" || entries[1].Message != "c" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestWebSocketUpgradeRequired(t *testing.T) {
	s := newTestServer(t)
	resp, _ := doRequest(t, s, http.MethodGet, "/ws/status", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestStatusWebSocket(t *testing.T) {
	s := newTestServer(t)
	s.SetDetectedText("EXIT")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Listener(ln)
	t.Cleanup(func() { s.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		return Event{Type: ev.Type, Data: ev.Data}
	}

	first := read()
	if first.Type != "status" || !strings.Contains(string(first.Data.(json.RawMessage)), "EXIT") {
		t.Errorf("join message = %+v", first)
	}

	s.PublishKeypoints(9, []pose.Keypoint{{X: 1, Y: 2, Z: 3}})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := read()
		if ev.Type == "keypoints" {
			var kp KeypointsEvent
			json.Unmarshal(ev.Data.(json.RawMessage), &kp)
			if kp.FrameSeq != 9 || len(kp.Keypoints) != 1 {
				t.Errorf("keypoints = %+v", kp)
			}
			return
		}
	}
	t.Fatal("keypoints event not received")
}

func TestStatusWebSocketTopics(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Listener(ln)
	t.Cleanup(func() { s.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/status?topics=run", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for registration, then publish a status (filtered) and a run.
	deadline := time.Now().Add(2 * time.Second)
	for s.statusHub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.SetDetectedText("ignored")
	s.RecordRun(&pipeline.Run{ID: "run-7"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "run" {
		t.Errorf("first event = %s, want run", ev.Type)
	}
}
