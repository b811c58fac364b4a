package camera

import "sort"

// Preset names.
const (
	Preset480p  = "480p"
	Preset720p  = "720p"
	Preset1080p = "1080p"
	PresetSaver = "saver"
)

var presets = map[string]Config{
	Preset480p:  {Width: 640, Height: 480, Framerate: 15, Quality: 75},
	Preset720p:  {Width: 1280, Height: 720, Framerate: 15, Quality: 80},
	Preset1080p: {Width: 1920, Height: 1080, Framerate: 10, Quality: 85},

	// Low bandwidth: enough for large signs.
	PresetSaver: {Width: 640, Height: 360, Framerate: 5, Quality: 60},
}

// GetPreset returns a preset config by name.
func GetPreset(name string) (Config, bool) {
	cfg, ok := presets[name]
	if ok {
		cfg.Preset = name
	}
	return cfg, ok
}

// PresetNames returns the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
