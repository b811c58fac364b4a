// Package log provides structured logging for go-lens.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options controls logger construction.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// File, when set, tees output into a size-rotated log file.
	File string

	// MaxSizeMB is the rotation threshold for File (default 50).
	MaxSizeMB int

	// Wrap, when set, decorates the final handler (e.g. to tee records
	// into the dashboard).
	Wrap func(slog.Handler) slog.Handler
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	InitWithOptions(Options{Level: level, File: os.Getenv("LOG_FILE")})
}

// InitWithOptions initializes the global logger. Only the first call wins.
func InitWithOptions(o Options) {
	once.Do(func() {
		logger = New(os.Stdout, o)
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w (and o.File when set) without touching
// the global instance.
func New(w io.Writer, o Options) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(o.Level),
	}

	if o.File != "" {
		maxSize := o.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
			LocalTime:  true,
		})
	}

	// Use JSON in production, text in development
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if os.Getenv("GO_ENV") == "production" {
		h = slog.NewJSONHandler(w, opts)
	}
	if o.Wrap != nil {
		h = o.Wrap(h)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
