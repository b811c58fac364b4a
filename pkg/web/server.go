// Package web serves the go-lens dashboard API: scan triggers, run results,
// camera settings and live status and log streams.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-lens/pkg/camera"
	"github.com/teslashibe/go-lens/pkg/hub"
	"github.com/teslashibe/go-lens/pkg/pipeline"
	"github.com/teslashibe/go-lens/pkg/pose"
	"github.com/teslashibe/go-lens/pkg/relay"
	"github.com/teslashibe/go-lens/pkg/textdetect"
)

// Pipeline is the part of the orchestrator the server drives.
type Pipeline interface {
	State() pipeline.State
	LastRun() *pipeline.Run
	Trigger(ctx context.Context) bool
	StartCapture() error
}

// Tracker is the pose tracking toggle.
type Tracker interface {
	Toggle() bool
	Enabled() bool
	Stats() pose.TrackerStats
}

// Status is the dashboard snapshot served by /api/status and pushed on
// /ws/status.
type Status struct {
	State          string              `json:"state"`
	RunID          string              `json:"run_id,omitempty"`
	DetectedText   string              `json:"detected_text"`
	TranslatedText string              `json:"translated_text"`
	Detections     []textdetect.Result `json:"detections"`
	PoseEnabled    bool                `json:"pose_enabled"`
	Devices        int                 `json:"devices"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Event is one message on /ws/status.
type Event struct {
	Type string `json:"type"` // status, keypoints, run
	Data any    `json:"data"`
}

// KeypointsEvent carries the latest pose.
type KeypointsEvent struct {
	FrameSeq  uint64          `json:"frame_seq"`
	Keypoints []pose.Keypoint `json:"keypoints"`
}

// Config configures the server.
type Config struct {
	// StaticDir, when set, is served at /.
	StaticDir string

	// Logs backs /api/logs and /ws/logs. Nil creates a private buffer.
	Logs *LogBuffer

	Logger *slog.Logger
}

// Server is the dashboard server. It is also a pipeline display and a pose
// sink, so every update reaches connected browsers.
type Server struct {
	app    *fiber.App
	ctx    context.Context
	logger *slog.Logger
	logs   *LogBuffer

	statusHub *hub.Hub
	logHub    *hub.Hub

	mu       sync.RWMutex
	status   Status
	pipeline Pipeline
	tracker  Tracker
	camera   *camera.Manager
	relay    *relay.Hub
}

// New creates the server. ctx bounds the hubs and every scan the server
// triggers; cancel it to shut everything down.
func New(ctx context.Context, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Logs == nil {
		cfg.Logs = NewLogBuffer(500)
	}

	s := &Server{
		ctx:       ctx,
		logger:    cfg.Logger.With("component", "web"),
		logs:      cfg.Logs,
		statusHub: hub.New("status", cfg.Logger),
		logHub:    hub.New("logs", cfg.Logger),
		status:    Status{State: pipeline.StateIdle.String(), Detections: []textdetect.Result{}},
	}

	s.statusHub.OnJoin(func() []hub.Message {
		return []hub.Message{s.encode("status", Event{Type: "status", Data: s.Status()})}
	})
	s.logHub.OnJoin(func() []hub.Message {
		entries := s.logs.Entries()
		msgs := make([]hub.Message, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, s.encode(e.Level, e))
		}
		return msgs
	})
	s.logs.Subscribe(func(e LogEntry) {
		s.logHub.Publish(e.Level, e)
	})

	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:               "go-lens",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/scan", s.handleScan)
	api.Get("/runs/last", s.handleLastRun)
	api.Post("/capture/start", s.handleCaptureStart)
	api.Post("/pose/toggle", s.handlePoseToggle)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handlePutCamera)
	api.Get("/logs", s.handleGetLogs)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// App exposes the fiber app for extra routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetPipeline attaches the orchestrator.
func (s *Server) SetPipeline(p Pipeline) {
	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()
}

// SetTracker attaches the pose tracker.
func (s *Server) SetTracker(t Tracker) {
	s.mu.Lock()
	s.tracker = t
	s.status.PoseEnabled = t.Enabled()
	s.mu.Unlock()
}

// SetCamera attaches the camera settings manager.
func (s *Server) SetCamera(m *camera.Manager) {
	s.mu.Lock()
	s.camera = m
	s.mu.Unlock()
}

// SetRelay mounts the device relay routes on this server.
func (s *Server) SetRelay(h *relay.Hub) {
	s.mu.Lock()
	s.relay = h
	s.mu.Unlock()
	h.RegisterRoutes(s.app)
	h.RegisterAPIRoutes(s.app.Group("/api"))
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("dashboard listening", "addr", addr)
	return s.app.Listen(addr)
}

// Listener serves on an existing listener until Shutdown.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Status returns the current snapshot.
func (s *Server) Status() Status {
	s.mu.RLock()
	st := s.status
	devices := 0
	if s.relay != nil {
		devices = s.relay.DeviceCount()
	}
	s.mu.RUnlock()
	st.Devices = devices
	return st
}

// update mutates the snapshot and broadcasts it.
func (s *Server) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.publish("status", s.Status())
}

// SetState records a pipeline state change.
func (s *Server) SetState(state pipeline.State) {
	s.update(func(st *Status) { st.State = state.String() })
}

// RecordRun publishes a finished run.
func (s *Server) RecordRun(run *pipeline.Run) {
	s.update(func(st *Status) { st.RunID = run.ID })
	s.publish("run", run)
}

// SetDetectedText implements pipeline.Display.
func (s *Server) SetDetectedText(text string) {
	s.update(func(st *Status) { st.DetectedText = text })
}

// SetTranslatedText implements pipeline.Display.
func (s *Server) SetTranslatedText(text string) {
	s.update(func(st *Status) { st.TranslatedText = text })
}

// SetDetections implements pipeline.DetectionsDisplay.
func (s *Server) SetDetections(results []textdetect.Result) {
	if results == nil {
		results = []textdetect.Result{}
	}
	s.update(func(st *Status) { st.Detections = results })
}

// PublishKeypoints implements pose.Sink. Keypoints are streamed only, not
// kept in the snapshot.
func (s *Server) PublishKeypoints(frameSeq uint64, keypoints []pose.Keypoint) {
	s.publish("keypoints", KeypointsEvent{FrameSeq: frameSeq, Keypoints: keypoints})
}

// TriggerScan starts a run and reports whether it started.
func (s *Server) TriggerScan() bool {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		return false
	}
	return p.Trigger(s.ctx)
}

// publish sends an event on the status hub under its own type as topic.
func (s *Server) publish(kind string, data any) {
	if err := s.statusHub.Publish(kind, Event{Type: kind, Data: data}); err != nil {
		s.logger.Error("encode event failed", "type", kind, "error", err)
	}
}

func (s *Server) encode(topic string, v any) hub.Message {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode failed", "error", err)
	}
	return hub.Message{Kind: hub.KindText, Topic: topic, Data: data}
}

var (
	_ pipeline.Display           = (*Server)(nil)
	_ pipeline.DetectionsDisplay = (*Server)(nil)
	_ pose.Sink                  = (*Server)(nil)
)
