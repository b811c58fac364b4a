// Package webcam reads frames from a local camera through OpenCV. Build
// with -tags gocv; without the tag Open returns ErrUnavailable.
package webcam

import (
	"errors"
	"log/slog"

	"github.com/teslashibe/go-lens/pkg/camera"
	"github.com/teslashibe/go-lens/pkg/frame"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("webcam: built without gocv support")

// ErrOpen is returned when the device cannot be opened.
var ErrOpen = errors.New("webcam: cannot open device")

// Config selects the device and capture settings.
type Config struct {
	Device int
	Camera camera.Config
	Logger *slog.Logger
}

// Camera is a local capture device.
type Camera interface {
	frame.Source
	frame.Starter
	frame.Sequencer

	// ApplyCamera changes resolution and framerate, reopening the device
	// if it is running.
	ApplyCamera(cfg camera.Config) error

	// Close releases the device.
	Close() error
}
