package pose

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-lens/pkg/imaging"
)

// DefaultEndpoint is where the pose service listens by default.
const DefaultEndpoint = "http://localhost:5000/detect"

// Config holds client configuration.
type Config struct {
	Endpoint string

	// Frames are resized to Width x Height before upload.
	Width       int
	Height      int
	JPEGQuality int

	Timeout    time.Duration
	HTTPClient *http.Client
	Resampler  imaging.Resampler

	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithEndpoint sets the /detect URL.
func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

// WithSize sets the upload resolution.
func WithSize(w, h int) Option {
	return func(c *Config) {
		c.Width = w
		c.Height = h
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTPClient = h }
}

// WithResampler sets the resampler.
func WithResampler(r imaging.Resampler) Option {
	return func(c *Config) { c.Resampler = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    DefaultEndpoint,
		Width:       640,
		Height:      480,
		JPEGQuality: imaging.DefaultJPEGQuality,
		Timeout:     5 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("pose: invalid size %dx%d", c.Width, c.Height)
	}
	return nil
}
