// Package relay connects headsets over WebSocket. A headset streams camera
// frames in and receives capture commands and display updates back.
package relay

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-lens/pkg/protocol"
)

// ErrNotConnected is returned when sending to a device that is not connected.
var ErrNotConnected = errors.New("relay: device not connected")

// Device is a connected headset.
type Device struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	state    *protocol.StateData
}

// Send writes a message to the device. Writes are serialized.
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

func (d *Device) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// Hub tracks connected devices and the frame source of each device ID.
// Sources outlive connections, so a headset can reconnect under the same ID.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*Device
	sources map[string]*Source
	logger  *slog.Logger

	onTrigger func(deviceID string)
	onTrack   func(deviceID string, enabled *bool)
	onState   func(deviceID string, state *protocol.StateData)

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesDropped    atomic.Uint64
}

// NewHub creates a new device hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		devices: make(map[string]*Device),
		sources: make(map[string]*Source),
		logger:  logger.With("component", "relay.hub"),
	}
}

// OnTrigger sets the callback for scan requests from a device.
func (h *Hub) OnTrigger(callback func(deviceID string)) {
	h.mu.Lock()
	h.onTrigger = callback
	h.mu.Unlock()
}

// OnTrack sets the callback for pose tracking toggles. A nil enabled means
// toggle.
func (h *Hub) OnTrack(callback func(deviceID string, enabled *bool)) {
	h.mu.Lock()
	h.onTrack = callback
	h.mu.Unlock()
}

// OnState sets the callback for device state reports.
func (h *Hub) OnState(callback func(deviceID string, state *protocol.StateData)) {
	h.mu.Lock()
	h.onState = callback
	h.mu.Unlock()
}

// Source returns the frame source for deviceID, creating it on first use.
func (h *Hub) Source(deviceID string) *Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	src, ok := h.sources[deviceID]
	if !ok {
		src = newSource(h, deviceID)
		h.sources[deviceID] = src
	}
	return src
}

// Display returns a display that pushes updates to deviceID.
func (h *Hub) Display(deviceID string) *Display {
	return &Display{hub: h, deviceID: deviceID, logger: h.logger}
}

// RegisterRoutes registers the device WebSocket endpoints.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleDevice))
	app.Get("/ws/device/:id", websocket.New(h.handleDevice))
}

func (h *Hub) handleDevice(c *websocket.Conn) {
	deviceID := c.Params("id")
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	now := time.Now()
	device := &Device{ID: deviceID, Conn: c, Connected: now, lastSeen: now}

	h.mu.Lock()
	if old, ok := h.devices[deviceID]; ok {
		old.Conn.Close()
	}
	h.devices[deviceID] = device
	count := len(h.devices)
	h.mu.Unlock()

	h.logger.Info("device connected", "device", deviceID, "total", count)

	defer func() {
		h.mu.Lock()
		if h.devices[deviceID] == device {
			delete(h.devices, deviceID)
		}
		count := len(h.devices)
		h.mu.Unlock()
		h.logger.Info("device disconnected", "device", deviceID, "total", count)
	}()

	// Tell the headset whether it should be streaming.
	if err := h.sendCapture(device, h.Source(deviceID).Capturing()); err != nil {
		h.logger.Warn("initial capture command failed", "device", deviceID, "error", err)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read ended", "device", deviceID, "error", err)
			return
		}

		device.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(device, data)
	}
}

func (h *Hub) handleMessage(device *Device, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug("parse error", "device", device.ID, "error", err)
		return
	}

	h.mu.RLock()
	triggerCb := h.onTrigger
	trackCb := h.onTrack
	stateCb := h.onState
	h.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		fd, err := msg.GetFrameData()
		if err != nil {
			h.framesDropped.Add(1)
			h.logger.Debug("bad frame message", "device", device.ID, "error", err)
			return
		}
		if err := h.Source(device.ID).update(fd); err != nil {
			h.framesDropped.Add(1)
			h.logger.Debug("frame dropped", "device", device.ID, "error", err)
		}

	case protocol.TypeTrigger:
		if triggerCb != nil {
			triggerCb(device.ID)
		}

	case protocol.TypeTrack:
		if trackCb != nil {
			td, err := msg.GetTrackData()
			if err == nil {
				trackCb(device.ID, td.Enabled)
			}
		}

	case protocol.TypeState:
		state, err := msg.GetStateData()
		if err != nil {
			return
		}
		device.mu.Lock()
		device.state = state
		device.mu.Unlock()
		if stateCb != nil {
			stateCb(device.ID, state)
		}

	case protocol.TypePing:
		var ping protocol.PingData
		msg.ParseData(&ping)
		ts := ping.Timestamp
		if ts == 0 {
			ts = msg.Timestamp
		}
		pong, err := protocol.NewPongMessage(ping.ID, ts, time.Now().UnixMilli())
		if err == nil {
			h.send(device, pong)
		}
	}
}

// SendCapture starts or stops the camera of a device.
func (h *Hub) SendCapture(deviceID string, active bool) error {
	device := h.device(deviceID)
	if device == nil {
		return ErrNotConnected
	}
	return h.sendCapture(device, active)
}

func (h *Hub) sendCapture(device *Device, active bool) error {
	msg, err := protocol.NewCaptureMessage(active)
	if err != nil {
		return err
	}
	return h.send(device, msg)
}

// SendConfig pushes camera settings to a device.
func (h *Hub) SendConfig(deviceID string, camera *protocol.CameraConfig) error {
	msg, err := protocol.NewConfigMessage(camera)
	if err != nil {
		return err
	}
	return h.SendTo(deviceID, msg)
}

// SendTo sends a message to one device.
func (h *Hub) SendTo(deviceID string, msg *protocol.Message) error {
	device := h.device(deviceID)
	if device == nil {
		return ErrNotConnected
	}
	return h.send(device, msg)
}

func (h *Hub) send(device *Device, msg *protocol.Message) error {
	h.messagesSent.Add(1)
	return device.Send(msg)
}

// Broadcast sends a message to all connected devices.
func (h *Hub) Broadcast(msg *protocol.Message) {
	for _, device := range h.Devices() {
		if err := h.send(device, msg); err != nil {
			h.logger.Debug("broadcast failed", "device", device.ID, "error", err)
		}
	}
}

// BroadcastStatus tells every device the pipeline state.
func (h *Hub) BroadcastStatus(state, runID string) {
	msg, err := protocol.NewStatusMessage(state, runID)
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

func (h *Hub) device(deviceID string) *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[deviceID]
}

// Devices returns all connected devices.
func (h *Hub) Devices() []*Device {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	return devices
}

// Connected reports whether deviceID has a live connection.
func (h *Hub) Connected(deviceID string) bool {
	return h.device(deviceID) != nil
}

// DeviceCount returns the number of connected devices.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Stats contains hub statistics.
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesDropped    uint64 `json:"frames_dropped"`
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.DeviceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesDropped:    h.framesDropped.Load(),
	}
}

// DeviceInfo describes a connected device.
type DeviceInfo struct {
	ID        string              `json:"id"`
	Connected time.Time           `json:"connected"`
	LastSeen  time.Time           `json:"last_seen"`
	State     *protocol.StateData `json:"state,omitempty"`
}

// DeviceInfos returns info about all connected devices.
func (h *Hub) DeviceInfos() []DeviceInfo {
	devices := h.Devices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		d.mu.Lock()
		infos = append(infos, DeviceInfo{
			ID:        d.ID,
			Connected: d.Connected,
			LastSeen:  d.lastSeen,
			State:     d.state,
		})
		d.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers device management routes.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.DeviceInfos(),
			"count":   h.DeviceCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	devices.Post("/:id/capture", func(c *fiber.Ctx) error {
		var cmd struct {
			Active bool `json:"active"`
		}
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		src := h.Source(c.Params("id"))
		var err error
		if cmd.Active {
			err = src.Start()
		} else {
			err = src.Stop()
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "sent", "active": cmd.Active})
	})
}
