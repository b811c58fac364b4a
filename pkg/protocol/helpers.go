package protocol

import (
	"encoding/base64"
	"fmt"
	"time"
)

// NewFrameMessage creates a frame message from encoded image bytes.
func NewFrameMessage(width, height int, format string, data []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  format,
		Data:    base64.StdEncoding.EncodeToString(data),
		FrameID: frameID,
	})
}

// NewTriggerMessage creates a scan trigger.
func NewTriggerMessage() (*Message, error) {
	return NewMessage(TypeTrigger, nil)
}

// NewCaptureMessage creates a camera start/stop command.
func NewCaptureMessage(active bool) (*Message, error) {
	return NewMessage(TypeCapture, CaptureCommand{Active: active})
}

// NewDetectedMessage updates only the detected text.
func NewDetectedMessage(text string) (*Message, error) {
	return NewMessage(TypeDisplay, DisplayData{DetectedText: &text})
}

// NewTranslatedMessage updates only the translated text.
func NewTranslatedMessage(text string) (*Message, error) {
	return NewMessage(TypeDisplay, DisplayData{TranslatedText: &text})
}

// NewPolygonsMessage updates only the outlines. An empty slice clears them.
func NewPolygonsMessage(polygons []Polygon) (*Message, error) {
	if polygons == nil {
		polygons = []Polygon{}
	}
	return NewMessage(TypeDisplay, DisplayData{Polygons: polygons})
}

// NewKeypointsMessage creates a pose keypoints message.
func NewKeypointsMessage(frameID uint64, keypoints [][3]float64) (*Message, error) {
	return NewMessage(TypeKeypoints, KeypointsData{FrameID: frameID, Keypoints: keypoints})
}

// NewStatusMessage creates a pipeline status message.
func NewStatusMessage(state, runID string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{State: state, RunID: runID})
}

func NewConfigMessage(camera *CameraConfig) (*Message, error) {
	return NewMessage(TypeConfig, ConfigUpdate{Camera: camera})
}

// NewPingMessage stamps a ping with the current time.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage answers a ping. Latency is pong minus ping time.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// Decode unmarshals the payload of m into a new T.
func Decode[T any](m *Message) (*T, error) {
	v := new(T)
	if err := m.ParseData(v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return v, nil
}

// DecodeFrameData returns the raw image bytes.
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

func (m *Message) GetFrameData() (*FrameData, error) { return Decode[FrameData](m) }
func (m *Message) GetStateData() (*StateData, error) { return Decode[StateData](m) }
func (m *Message) GetTrackData() (*TrackData, error) { return Decode[TrackData](m) }
func (m *Message) GetCaptureCommand() (*CaptureCommand, error) { return Decode[CaptureCommand](m) }
func (m *Message) GetDisplayData() (*DisplayData, error) { return Decode[DisplayData](m) }
func (m *Message) GetKeypointsData() (*KeypointsData, error) { return Decode[KeypointsData](m) }
func (m *Message) GetConfigUpdate() (*ConfigUpdate, error) { return Decode[ConfigUpdate](m) }
func (m *Message) GetPingData() (*PingData, error) { return Decode[PingData](m) }
