package translation

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultEndpoint is the Cloud Translation v2 URL.
const DefaultEndpoint = "https://translation.googleapis.com/language/translate/v2"

// Config holds client configuration.
type Config struct {
	Endpoint string
	APIKey   string

	// Target is the output language code.
	Target string

	Timeout    time.Duration
	HTTPClient *http.Client

	// Cache stores successful translations. Nil disables caching.
	Cache Cache

	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithEndpoint sets the translate URL.
func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTarget sets the output language.
func WithTarget(lang string) Option {
	return func(c *Config) { c.Target = lang }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTPClient = h }
}

// WithCache enables result caching.
func WithCache(cache Cache) Option {
	return func(c *Config) { c.Cache = cache }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Target:   "en",
		Timeout:  15 * time.Second,
		Logger:   slog.Default(),
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
	if c.Target == "" {
		return ErrNoTarget
	}
	return nil
}
