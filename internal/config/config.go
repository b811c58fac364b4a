// Package config loads go-lens application configuration.
//
// Precedence, lowest first: DefaultConfig, the optional YAML file, a .env
// file, process environment. Command flags are applied by the caller after
// Load returns. The result is validated once and treated as read-only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default endpoints.
const (
	DefaultVisionEndpoint    = "https://vision.googleapis.com/v1/images:annotate"
	DefaultTranslateEndpoint = "https://translation.googleapis.com/language/translate/v2"
	DefaultPoseEndpoint      = "http://localhost:5000/detect"
)

// Config is the complete go-lens configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Vision    VisionConfig    `yaml:"vision"`
	Translate TranslateConfig `yaml:"translate"`
	Pose      PoseConfig      `yaml:"pose"`
	Source    SourceConfig    `yaml:"source"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the dashboard and device relay.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// VisionConfig configures the text-detection client.
type VisionConfig struct {
	Endpoint     string        `yaml:"endpoint" validate:"required,url"`
	APIKey       string        `yaml:"api_key"`
	SampleFactor int           `yaml:"sample_factor" validate:"gte=1"`
	JPEGQuality  int           `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
}

// TranslateConfig configures the translation client.
type TranslateConfig struct {
	Endpoint string        `yaml:"endpoint" validate:"required,url"`
	APIKey   string        `yaml:"api_key"`
	Target   string        `yaml:"target" validate:"required"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

// PoseConfig configures the optional pose-estimation loop.
type PoseConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	Width    int     `yaml:"width" validate:"gte=1"`
	Height   int     `yaml:"height" validate:"gte=1"`
	MaxFPS   float64 `yaml:"max_fps" validate:"gt=0"`
}

// SourceConfig selects where frames come from.
type SourceConfig struct {
	// Kind is one of relay, webrtc, webcam, image.
	Kind      string `yaml:"kind" validate:"oneof=relay webrtc webcam image"`
	DeviceID  string `yaml:"device_id"`
	SignalURL string `yaml:"signal_url" validate:"required_if=Kind webrtc"`
	Camera    int    `yaml:"camera" validate:"gte=0"`
	ImagePath string `yaml:"image_path" validate:"required_if=Kind image"`
}

// CacheConfig selects the translation cache.
type CacheConfig struct {
	// Kind is one of none, memory, redis.
	Kind      string        `yaml:"kind" validate:"oneof=none memory redis"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Kind redis"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Vision: VisionConfig{
			Endpoint:     DefaultVisionEndpoint,
			SampleFactor: 2,
			JPEGQuality:  75,
			Timeout:      30 * time.Second,
		},
		Translate: TranslateConfig{
			Endpoint: DefaultTranslateEndpoint,
			Target:   "en",
			Timeout:  15 * time.Second,
		},
		Pose: PoseConfig{
			Endpoint: DefaultPoseEndpoint,
			Width:    640,
			Height:   480,
			MaxFPS:   10,
		},
		Source: SourceConfig{Kind: "relay", DeviceID: "headset"},
		Cache:  CacheConfig{Kind: "memory", TTL: time.Hour},
		Log:    LogConfig{Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration. path may be empty to skip the YAML file.
// A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func applyEnv(cfg *Config) {
	shared := os.Getenv("GOOGLE_API_KEY")

	cfg.Vision.APIKey = firstNonEmpty(os.Getenv("GOOGLE_VISION_API_KEY"), shared, cfg.Vision.APIKey)
	cfg.Translate.APIKey = firstNonEmpty(os.Getenv("GOOGLE_TRANSLATE_API_KEY"), shared, cfg.Translate.APIKey)

	setString(&cfg.Server.Addr, "LENS_ADDR")
	setString(&cfg.Vision.Endpoint, "VISION_ENDPOINT")
	setInt(&cfg.Vision.SampleFactor, "VISION_SAMPLE_FACTOR")
	setInt(&cfg.Vision.JPEGQuality, "VISION_JPEG_QUALITY")
	setString(&cfg.Translate.Endpoint, "TRANSLATE_ENDPOINT")
	setString(&cfg.Translate.Target, "TRANSLATE_TARGET")
	setBool(&cfg.Pose.Enabled, "POSE_ENABLED")
	setString(&cfg.Pose.Endpoint, "POSE_ENDPOINT")
	setString(&cfg.Source.Kind, "SOURCE_KIND")
	setString(&cfg.Source.DeviceID, "DEVICE_ID")
	setString(&cfg.Source.SignalURL, "SIGNAL_URL")
	setString(&cfg.Source.ImagePath, "IMAGE_PATH")
	setString(&cfg.Cache.Kind, "CACHE_KIND")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File, "LOG_FILE")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}
