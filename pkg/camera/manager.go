package camera

import (
	"errors"
	"fmt"
	"sync"
)

// Update is a partial change. Preset is applied first, then any other
// non-nil field.
type Update struct {
	Preset    *string `json:"preset,omitempty"`
	Width     *int    `json:"width,omitempty"`
	Height    *int    `json:"height,omitempty"`
	Framerate *int    `json:"framerate,omitempty"`
	Quality   *int    `json:"quality,omitempty"`
}

// Manager holds the current camera configuration and notifies listeners
// when it changes.
type Manager struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config) error
}

// NewManager creates a manager starting at cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// OnConfigChange registers a listener. Listeners run in registration order
// after the new config is stored.
func (m *Manager) OnConfigChange(fn func(Config) error) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg, then notifies listeners. Listener
// errors are joined; the config is kept either way.
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	listeners := append([]func(Config) error(nil), m.listeners...)
	m.mu.Unlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("camera: apply config: %w", err)
	}
	return nil
}

// Apply merges u into the current config and stores the result.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.GetConfig()

	if u.Preset != nil {
		preset, ok := GetPreset(*u.Preset)
		if !ok {
			return cfg, fmt.Errorf("camera: unknown preset %q", *u.Preset)
		}
		cfg = preset
	}

	custom := false
	for _, f := range []struct {
		src *int
		dst *int
	}{
		{u.Width, &cfg.Width},
		{u.Height, &cfg.Height},
		{u.Framerate, &cfg.Framerate},
		{u.Quality, &cfg.Quality},
	} {
		if f.src != nil {
			*f.dst = *f.src
			custom = true
		}
	}
	if custom {
		cfg.Preset = ""
	}

	if err := m.SetConfig(cfg); err != nil {
		return m.GetConfig(), err
	}
	return cfg, nil
}
