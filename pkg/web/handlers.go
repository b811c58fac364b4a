package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-lens/pkg/camera"
	"github.com/teslashibe/go-lens/pkg/hub"
)

// handleStatus returns the current snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleScan starts a run. 409 when one is already in progress.
func (s *Server) handleScan(c *fiber.Ctx) error {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "pipeline not configured"})
	}

	if !p.Trigger(s.ctx) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "scan in progress",
			"state": p.State().String(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// handleLastRun returns the most recent run
func (s *Server) handleLastRun(c *fiber.Ctx) error {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()

	if p == nil || p.LastRun() == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no runs yet"})
	}
	return c.JSON(p.LastRun())
}

// handleCaptureStart restarts the camera after a scan stopped it
func (s *Server) handleCaptureStart(c *fiber.Ctx) error {
	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "pipeline not configured"})
	}

	if err := p.StartCapture(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "capturing"})
}

// handlePoseToggle flips pose tracking
func (s *Server) handlePoseToggle(c *fiber.Ctx) error {
	s.mu.RLock()
	t := s.tracker
	s.mu.RUnlock()
	if t == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "pose tracking disabled"})
	}

	enabled := t.Toggle()
	s.update(func(st *Status) { st.PoseEnabled = enabled })
	return c.JSON(fiber.Map{"enabled": enabled, "stats": t.Stats()})
}

// handleGetCamera returns camera settings and presets
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.camera
	s.mu.RUnlock()
	if m == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "camera settings unavailable"})
	}
	return c.JSON(fiber.Map{
		"config":  m.GetConfig(),
		"presets": camera.PresetNames(),
	})
}

// handlePutCamera applies a partial camera update
func (s *Server) handlePutCamera(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.camera
	s.mu.RUnlock()
	if m == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "camera settings unavailable"})
	}

	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	cfg, err := m.Apply(u)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "config": cfg})
	}
	return c.JSON(fiber.Map{"config": cfg})
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.logs.Entries())
}

// handleStatusWS streams events. ?topics=status,run limits them to the
// listed types.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c, hub.ParseTopics(c.Query("topics"))...).Run()
}

// handleLogsWS streams log entries, starting with the buffered ones.
// ?topics=warn,error filters by level.
func (s *Server) handleLogsWS(c *websocket.Conn) {
	hub.NewClient(s.logHub, c, hub.ParseTopics(c.Query("topics"))...).Run()
}
