package textdetect

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-lens/pkg/imaging"
)

// DefaultEndpoint is the Cloud Vision batch annotate URL.
const DefaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Config holds client configuration.
type Config struct {
	// Connection
	Endpoint string // images:annotate URL
	APIKey   string // sent as ?key=; empty when HTTPClient carries OAuth2

	// Preprocessing
	SampleFactor int // each dimension is divided by this, minimum 1
	JPEGQuality  int // 1-100

	// Timeouts
	Timeout time.Duration

	// HTTPClient overrides the shared client built from Timeout.
	HTTPClient *http.Client

	// Resampler overrides the default CPU resampler.
	Resampler imaging.Resampler

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithEndpoint sets the annotate URL.
func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithSampleFactor sets the downsample divisor.
func WithSampleFactor(n int) Option {
	return func(c *Config) { c.SampleFactor = n }
}

// WithJPEGQuality sets the upload quality.
func WithJPEGQuality(q int) Option {
	return func(c *Config) { c.JPEGQuality = q }
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
		Endpoint:     DefaultEndpoint,
		SampleFactor: 2,
		JPEGQuality:  imaging.DefaultJPEGQuality,
		Timeout:      30 * time.Second,
		Logger:       slog.Default(),
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
	if c.SampleFactor < 1 {
		return fmt.Errorf("textdetect: sample factor must be >= 1, got %d", c.SampleFactor)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("textdetect: jpeg quality must be 1-100, got %d", c.JPEGQuality)
	}
	return nil
}
