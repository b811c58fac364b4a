package video

import (
	"errors"
	"log/slog"
	"time"
)

// ErrNoSignalURL is returned when no signalling server is configured.
var ErrNoSignalURL = errors.New("video: no signalling URL configured")

// Config holds client configuration.
type Config struct {
	// SignalURL is the GStreamer webrtcsink signalling server, e.g.
	// ws://headset.local:8443.
	SignalURL string

	// Producer is the meta "name" of the stream to consume. Empty picks the
	// first producer listed.
	Producer string

	// ConnectTimeout bounds the handshake and the wait for the first track.
	ConnectTimeout time.Duration

	// DecodeInterval is the minimum time between decoded frames.
	DecodeInterval time.Duration

	// Decoder overrides the ffmpeg decoder.
	Decoder Decoder

	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithSignalURL sets the signalling server URL.
func WithSignalURL(url string) Option {
	return func(c *Config) { c.SignalURL = url }
}

// WithProducer selects a producer by name.
func WithProducer(name string) Option {
	return func(c *Config) { c.Producer = name }
}

// WithConnectTimeout sets the connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithDecodeInterval sets the decode interval.
func WithDecodeInterval(d time.Duration) Option {
	return func(c *Config) { c.DecodeInterval = d }
}

// WithDecoder sets the H264 decoder.
func WithDecoder(d Decoder) Option {
	return func(c *Config) { c.Decoder = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 15 * time.Second,
		DecodeInterval: 100 * time.Millisecond,
		Logger:         slog.Default(),
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
	if c.SignalURL == "" {
		return ErrNoSignalURL
	}
	return nil
}
