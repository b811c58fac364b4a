// Package lens wires sources, the scan pipeline, pose tracking, the device
// relay and the dashboard into one application.
package lens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/teslashibe/go-lens/internal/config"
	"github.com/teslashibe/go-lens/internal/gauth"
	"github.com/teslashibe/go-lens/internal/httpc"
	"github.com/teslashibe/go-lens/pkg/camera"
	"github.com/teslashibe/go-lens/pkg/frame"
	"github.com/teslashibe/go-lens/pkg/pipeline"
	"github.com/teslashibe/go-lens/pkg/pose"
	"github.com/teslashibe/go-lens/pkg/protocol"
	"github.com/teslashibe/go-lens/pkg/relay"
	"github.com/teslashibe/go-lens/pkg/textdetect"
	"github.com/teslashibe/go-lens/pkg/translation"
	"github.com/teslashibe/go-lens/pkg/video"
	"github.com/teslashibe/go-lens/pkg/web"
	"github.com/teslashibe/go-lens/pkg/webcam"
)

// ErrNotInitialized is returned by Run and Scan before Init.
var ErrNotInitialized = errors.New("lens: not initialized")

// App holds every running component.
type App struct {
	config *config.Config
	logs   *web.LogBuffer
	logger *slog.Logger

	// Google clients
	scanner    *textdetect.Client
	translator *translation.Client
	redis      *translation.RedisCache

	// Frames
	source      frame.Source
	videoClient *video.Client
	webcam      webcam.Camera
	camera      *camera.Manager

	relay        *relay.Hub
	orchestrator *pipeline.Orchestrator
	tracker      *pose.Tracker
	webServer    *web.Server

	// httpClient overrides the base client for Google calls (tests).
	httpClient *http.Client
}

// Option configures an App.
type Option func(*App)

// WithLogs records log output for the dashboard.
func WithLogs(b *web.LogBuffer) Option {
	return func(a *App) { a.logs = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithHTTPClient sets the base client for Google API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// New creates an application from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("lens: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lens: %w", err)
	}

	a := &App{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.logs == nil {
		a.logs = web.NewLogBuffer(500)
	}
	a.logger = a.logger.With("component", "lens")
	return a, nil
}

// Init builds every component. ctx bounds the dashboard hubs, the WebRTC
// connection and every scan started by a device or browser.
func (a *App) Init(ctx context.Context) error {
	if err := a.initGoogle(ctx); err != nil {
		return fmt.Errorf("google clients: %w", err)
	}

	a.camera = camera.NewManager(camera.DefaultConfig())
	a.relay = relay.NewHub(a.logger)
	a.webServer = web.New(ctx, web.Config{Logs: a.logs, Logger: a.logger})

	if err := a.initSource(ctx); err != nil {
		return fmt.Errorf("source %s: %w", a.config.Source.Kind, err)
	}

	display := pipeline.MultiDisplay{a.webServer}
	if a.config.Source.Kind == "relay" {
		display = append(display, a.relay.Display(a.config.Source.DeviceID))
	}

	a.orchestrator = pipeline.New(a.source, a.scanner, a.translator, display,
		pipeline.WithLogger(a.logger),
		pipeline.WithStateListener(func(s pipeline.State) {
			a.webServer.SetState(s)
			a.relay.BroadcastStatus(s.String(), "")
		}),
		pipeline.WithRunListener(func(run *pipeline.Run) {
			a.webServer.RecordRun(run)
			a.relay.BroadcastStatus(pipeline.StateIdle.String(), run.ID)
		}),
	)

	if a.config.Pose.Enabled {
		if err := a.initPose(); err != nil {
			return fmt.Errorf("pose: %w", err)
		}
	}

	a.relay.OnTrigger(func(deviceID string) {
		if !a.orchestrator.Trigger(ctx) {
			a.logger.Info("trigger ignored", "device", deviceID, "state", a.orchestrator.State())
		}
	})
	a.relay.OnTrack(func(deviceID string, enabled *bool) {
		if a.tracker == nil {
			a.logger.Info("pose tracking disabled", "device", deviceID)
			return
		}
		if enabled == nil {
			a.tracker.Toggle()
			return
		}
		a.tracker.SetEnabled(*enabled)
	})

	a.camera.OnConfigChange(func(c camera.Config) error {
		msg, err := protocol.NewConfigMessage(c.Protocol())
		if err != nil {
			return err
		}
		a.relay.Broadcast(msg)
		return nil
	})
	if a.webcam != nil {
		a.camera.OnConfigChange(a.webcam.ApplyCamera)
	}

	a.webServer.SetPipeline(a.orchestrator)
	a.webServer.SetCamera(a.camera)
	a.webServer.SetRelay(a.relay)
	if a.tracker != nil {
		a.webServer.SetTracker(a.tracker)
	}
	return nil
}

func (a *App) initGoogle(ctx context.Context) error {
	vc := a.config.Vision
	base := a.httpClient
	if base == nil {
		base = httpc.NewClient(vc.Timeout)
	}
	visionHTTP, err := gauth.Client(ctx, base, gauth.Config{APIKey: vc.APIKey, UseADC: true})
	if err != nil {
		return err
	}
	a.scanner, err = textdetect.NewClient(
		textdetect.WithEndpoint(vc.Endpoint),
		textdetect.WithAPIKey(vc.APIKey),
		textdetect.WithSampleFactor(vc.SampleFactor),
		textdetect.WithJPEGQuality(vc.JPEGQuality),
		textdetect.WithHTTPClient(visionHTTP),
		textdetect.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	tc := a.config.Translate
	base = a.httpClient
	if base == nil {
		base = httpc.NewClient(tc.Timeout)
	}
	translateHTTP, err := gauth.Client(ctx, base, gauth.Config{APIKey: tc.APIKey, UseADC: true})
	if err != nil {
		return err
	}
	opts := []translation.Option{
		translation.WithEndpoint(tc.Endpoint),
		translation.WithAPIKey(tc.APIKey),
		translation.WithTarget(tc.Target),
		translation.WithHTTPClient(translateHTTP),
		translation.WithLogger(a.logger),
	}

	switch cc := a.config.Cache; cc.Kind {
	case "memory":
		opts = append(opts, translation.WithCache(translation.NewMemoryCache(cc.TTL)))
	case "redis":
		a.redis, err = translation.DialRedis(ctx, cc.RedisAddr, cc.TTL)
		if err != nil {
			return err
		}
		opts = append(opts, translation.WithCache(a.redis))
	}

	a.translator, err = translation.NewClient(opts...)
	return err
}

func (a *App) initSource(ctx context.Context) error {
	sc := a.config.Source
	switch sc.Kind {
	case "relay":
		a.source = a.relay.Source(sc.DeviceID)

	case "webrtc":
		c, err := video.NewClient(
			video.WithSignalURL(sc.SignalURL),
			video.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}
		if err := c.Connect(ctx); err != nil {
			c.Close()
			return err
		}
		a.videoClient = c
		a.source = c

	case "webcam":
		cam, err := webcam.Open(webcam.Config{
			Device: sc.Camera,
			Camera: a.camera.GetConfig(),
			Logger: a.logger,
		})
		if err != nil {
			return err
		}
		a.webcam = cam
		a.source = cam

	case "image":
		img, err := frame.OpenImage(sc.ImagePath)
		if err != nil {
			return err
		}
		a.source = img

	default:
		return fmt.Errorf("unknown source kind %q", sc.Kind)
	}
	return nil
}

func (a *App) initPose() error {
	pc := a.config.Pose
	client, err := pose.NewClient(
		pose.WithEndpoint(pc.Endpoint),
		pose.WithSize(pc.Width, pc.Height),
		pose.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	sinks := pose.MultiSink{a.webServer}
	if a.config.Source.Kind == "relay" {
		sinks = append(sinks, a.relay.Display(a.config.Source.DeviceID))
	}
	a.tracker = pose.NewTracker(a.source, client, sinks, pc.MaxFPS, a.logger)
	return nil
}

// Orchestrator returns the scan pipeline.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Server returns the dashboard server.
func (a *App) Server() *web.Server {
	return a.webServer
}

// Run serves the dashboard and device relay on the configured address and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.orchestrator == nil {
		return ErrNotInitialized
	}
	ln, err := net.Listen("tcp", a.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if a.orchestrator == nil {
		return ErrNotInitialized
	}
	if a.tracker != nil {
		go a.tracker.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving", "addr", ln.Addr().String(), "source", a.config.Source.Kind)
		errCh <- a.webServer.Listener(ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Scan runs the pipeline once and returns the result. Used for one-shot
// image scans.
func (a *App) Scan(ctx context.Context) (*pipeline.Run, error) {
	if a.orchestrator == nil {
		return nil, ErrNotInitialized
	}
	return a.orchestrator.Run(ctx)
}

// Shutdown releases every component. Safe to call after a failed Init.
func (a *App) Shutdown() {
	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			a.logger.Warn("dashboard shutdown", "error", err)
		}
	}
	if a.videoClient != nil {
		a.videoClient.Close()
	}
	if a.webcam != nil {
		a.webcam.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.logger.Info("stopped")
}
