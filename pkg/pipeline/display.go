package pipeline

import (
	"log/slog"

	"github.com/teslashibe/go-lens/pkg/textdetect"
)

// NoTextMessage is shown when a scan finds nothing.
const NoTextMessage = "No text detected."

// Display shows the two strings a run produces.
type Display interface {
	SetDetectedText(text string)
	SetTranslatedText(text string)
}

// DetectionsDisplay is implemented by displays that can draw polygons.
// Coordinates are in the downsampled image space.
type DetectionsDisplay interface {
	SetDetections(results []textdetect.Result)
}

// MultiDisplay fans every call out to each display in order.
type MultiDisplay []Display

// SetDetectedText implements Display.
func (m MultiDisplay) SetDetectedText(text string) {
	for _, d := range m {
		d.SetDetectedText(text)
	}
}

// SetTranslatedText implements Display.
func (m MultiDisplay) SetTranslatedText(text string) {
	for _, d := range m {
		d.SetTranslatedText(text)
	}
}

// SetDetections forwards to every member that implements DetectionsDisplay.
func (m MultiDisplay) SetDetections(results []textdetect.Result) {
	for _, d := range m {
		if dd, ok := d.(DetectionsDisplay); ok {
			dd.SetDetections(results)
		}
	}
}

// LogDisplay writes both strings to a logger.
type LogDisplay struct {
	Logger *slog.Logger
}

// SetDetectedText implements Display.
func (l LogDisplay) SetDetectedText(text string) {
	l.logger().Info("detected", "text", text)
}

// SetTranslatedText implements Display.
func (l LogDisplay) SetTranslatedText(text string) {
	l.logger().Info("translated", "text", text)
}

func (l LogDisplay) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

var (
	_ Display           = MultiDisplay(nil)
	_ DetectionsDisplay = MultiDisplay(nil)
	_ Display           = LogDisplay{}
)
