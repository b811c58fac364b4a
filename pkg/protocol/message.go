// Package protocol defines the WebSocket messages exchanged between a
// headset and the go-lens service.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType is the "type" field of the envelope.
type MessageType string

const (
	// Device → service
	TypeFrame   MessageType = "frame"   // Camera frame
	TypeState   MessageType = "state"   // Device state
	TypeTrigger MessageType = "trigger" // User asked for a scan
	TypeTrack   MessageType = "track"   // User toggled pose tracking

	// Service → device
	TypeCapture   MessageType = "capture"   // Start or stop the camera
	TypeDisplay   MessageType = "display"   // Detected and translated text
	TypeKeypoints MessageType = "keypoints" // Pose keypoints
	TypeStatus    MessageType = "status"    // Pipeline state
	TypeConfig    MessageType = "config"    // Configuration update

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for every WebSocket message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a timestamped envelope. Nil data is omitted.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	msg := &Message{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Data = raw
	return msg, nil
}

// ParseData unmarshals the message data into v. Empty data leaves v untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes encodes the envelope.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes an envelope and requires a type.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("parse message: missing type")
	}
	return &msg, nil
}

// Device → service payloads.

// FrameData carries one encoded camera frame.
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg", "png"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// StateData reports what the device is doing.
type StateData struct {
	Capturing bool   `json:"capturing"`
	Tracking  bool   `json:"tracking"`
	Model     string `json:"model,omitempty"`
}

// TrackData toggles or sets pose tracking. A nil Enabled toggles.
type TrackData struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// Service → device payloads.

// CaptureCommand starts or stops the device camera.
type CaptureCommand struct {
	Active bool `json:"active"`
}

// DisplayData is the text shown next to the scanned object.
type DisplayData struct {
	DetectedText   *string   `json:"detected_text,omitempty"`
	TranslatedText *string   `json:"translated_text,omitempty"`
	Polygons       []Polygon `json:"polygons,omitempty"`
}

// Polygon is one text block outline in downsampled image pixels.
type Polygon struct {
	Text   string   `json:"text"`
	Points [][2]int `json:"points"`
}

// KeypointsData carries pose keypoints as [x, y, z] triples.
type KeypointsData struct {
	FrameID   uint64       `json:"frame_id,omitempty"`
	Keypoints [][3]float64 `json:"keypoints"`
}

// StatusData reports the pipeline state.
type StatusData struct {
	State string `json:"state"`
	RunID string `json:"run_id,omitempty"`
}

// ConfigUpdate pushes new settings to a device.
type ConfigUpdate struct {
	Camera *CameraConfig `json:"camera,omitempty"`
}

// CameraConfig mirrors camera.Config on the wire.
type CameraConfig struct {
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Framerate int    `json:"framerate,omitempty"`
	Quality   int    `json:"quality,omitempty"`
	Preset    string `json:"preset,omitempty"` // "480p", "720p", "1080p"
}

// Bidirectional payloads.

type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData echoes a ping with both timestamps.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
