package config

import (
	"encoding/json"
	"fmt"
	"slices"
)

// detectPresentKeys unmarshals JSON bytes to determine which config keys
// are explicitly present in the file. Returns a flat set of dotted-path keys
// (e.g., "window.width").
func detectPresentKeys(jsonBytes []byte) map[string]bool {
	present := make(map[string]bool)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &raw); err != nil {
		return present
	}

	topKeys := []string{"version", "defaultEffect", "textureTier", "fps", "smoothness", "fadeColor", "logLevel"}
	for _, k := range topKeys {
		if _, ok := raw[k]; ok {
			present[k] = true
		}
	}

	if windowRaw, ok := raw["window"]; ok {
		var window map[string]json.RawMessage
		if json.Unmarshal(windowRaw, &window) == nil {
			if _, ok := window["width"]; ok {
				present["window.width"] = true
			}
			if _, ok := window["height"]; ok {
				present["window.height"] = true
			}
		}
	}

	return present
}

// ApplyMissingDefaults sets default values for config fields that are absent
// from the JSON file. Only truly missing fields get defaults, preserving
// intentional zero values (e.g., smoothness=0).
func ApplyMissingDefaults(config *Config, presentKeys map[string]bool) {
	defaults := DefaultConfig()

	if !presentKeys["version"] {
		config.Version = defaults.Version
	}
	if !presentKeys["defaultEffect"] {
		config.DefaultEffect = defaults.DefaultEffect
	}
	if !presentKeys["textureTier"] {
		config.TextureTier = defaults.TextureTier
	}
	if !presentKeys["fps"] {
		config.FPS = defaults.FPS
	}
	if !presentKeys["smoothness"] {
		config.Smoothness = defaults.Smoothness
	}
	if !presentKeys["fadeColor"] {
		config.FadeColor = defaults.FadeColor
	}
	if !presentKeys["logLevel"] {
		config.LogLevel = defaults.LogLevel
	}
	if !presentKeys["window.width"] {
		config.Window.Width = defaults.Window.Width
	}
	if !presentKeys["window.height"] {
		config.Window.Height = defaults.Window.Height
	}
}

// ValidateConfig checks all config fields against valid ranges and returns
// human-readable error descriptions. An empty slice means the config is valid.
func ValidateConfig(config *Config) []string {
	var errors []string

	// version
	if config.Version != 1 {
		errors = append(errors, fmt.Sprintf("version: %d (valid: 1)", config.Version))
	}

	// defaultEffect
	if config.DefaultEffect == "" {
		errors = append(errors, "defaultEffect: empty (valid: an effect id)")
	}

	// textureTier
	if !slices.Contains(TextureTiers, config.TextureTier) {
		errors = append(errors, fmt.Sprintf("textureTier: %q (valid: %v)", config.TextureTier, TextureTiers))
	}

	// fps
	if config.FPS < 1 || config.FPS > 120 {
		errors = append(errors, fmt.Sprintf("fps: %d (valid: 1-120)", config.FPS))
	}

	// smoothness
	if config.Smoothness < 0 || config.Smoothness > 1 {
		errors = append(errors, fmt.Sprintf("smoothness: %.2f (valid: 0.0-1.0)", config.Smoothness))
	}

	// fadeColor
	if _, err := ParseColor(config.FadeColor); err != nil {
		errors = append(errors, fmt.Sprintf("fadeColor: %q (valid: CSS colour)", config.FadeColor))
	}

	// logLevel
	if !slices.Contains(LogLevels, config.LogLevel) {
		errors = append(errors, fmt.Sprintf("logLevel: %q (valid: %v)", config.LogLevel, LogLevels))
	}

	// window.width
	if config.Window.Width < 320 {
		errors = append(errors, fmt.Sprintf("window.width: %d (valid: >= 320)", config.Window.Width))
	}

	// window.height
	if config.Window.Height < 240 {
		errors = append(errors, fmt.Sprintf("window.height: %d (valid: >= 240)", config.Window.Height))
	}

	return errors
}

// CorrectConfig resets any invalid fields to their defaults from DefaultConfig().
// Valid fields are preserved.
func CorrectConfig(config *Config) *Config {
	defaults := DefaultConfig()

	if config.Version != 1 {
		config.Version = defaults.Version
	}
	if config.DefaultEffect == "" {
		config.DefaultEffect = defaults.DefaultEffect
	}
	if !slices.Contains(TextureTiers, config.TextureTier) {
		config.TextureTier = defaults.TextureTier
	}
	if config.FPS < 1 || config.FPS > 120 {
		config.FPS = defaults.FPS
	}
	if config.Smoothness < 0 || config.Smoothness > 1 {
		config.Smoothness = defaults.Smoothness
	}
	if _, err := ParseColor(config.FadeColor); err != nil {
		config.FadeColor = defaults.FadeColor
	}
	if !slices.Contains(LogLevels, config.LogLevel) {
		config.LogLevel = defaults.LogLevel
	}
	if config.Window.Width < 320 {
		config.Window.Width = defaults.Window.Width
	}
	if config.Window.Height < 240 {
		config.Window.Height = defaults.Window.Height
	}

	return config
}
