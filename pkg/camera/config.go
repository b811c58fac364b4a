// Package camera holds the runtime-adjustable capture settings shared by
// the local webcam and connected headsets.
package camera

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-lens/pkg/protocol"
)

// Config holds capture settings. Changes are pushed to the active source
// and to every connected headset.
type Config struct {
	Width     int `json:"width" validate:"gte=160,lte=3840"`
	Height    int `json:"height" validate:"gte=120,lte=2160"`
	Framerate int `json:"framerate" validate:"gte=1,lte=60"`

	// Quality is the JPEG quality headsets use when streaming frames.
	Quality int `json:"quality" validate:"gte=1,lte=100"`

	// Preset is the name of the preset this config came from, if any.
	Preset string `json:"preset,omitempty"`
}

// DefaultConfig is 720p at 15 FPS. Text detection downsamples by two, so
// this keeps small print legible without saturating the uplink.
func DefaultConfig() Config {
	return Config{
		Width:     1280,
		Height:    720,
		Framerate: 15,
		Quality:   80,
		Preset:    Preset720p,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and returns one message per bad field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must be %s %s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("camera: invalid config: %s", strings.Join(msgs, "; "))
}

// Protocol converts to the wire form sent to headsets.
func (c Config) Protocol() *protocol.CameraConfig {
	return &protocol.CameraConfig{
		Width:     c.Width,
		Height:    c.Height,
		Framerate: c.Framerate,
		Quality:   c.Quality,
		Preset:    c.Preset,
	}
}
