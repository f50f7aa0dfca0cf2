package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"

	css "github.com/mazznoer/csscolorparser"
)

// LoadConfig loads the configuration from path.
// If the file doesn't exist, it returns default configuration.
// If the file is corrupted, it returns an error.
// Missing fields (absent from JSON) are silently defaulted.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	// Read raw bytes for both parsing and key detection
	jsonBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := &Config{}
	if err := json.Unmarshal(jsonBytes, config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	// Apply defaults only for fields that are absent from the file
	ApplyMissingDefaults(config, detectPresentKeys(jsonBytes))

	return config, nil
}

// SaveConfig saves the configuration to path atomically
func SaveConfig(path string, config *Config) error {
	return AtomicWriteJSON(path, config)
}

// CreateConfigIfMissing writes a default config to path if none exists
func CreateConfigIfMissing(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return SaveConfig(path, DefaultConfig())
	}
	return nil
}

// ParseColor parses a CSS colour string such as "black", "#ff8800" or
// "rgb(255 136 0)".
func ParseColor(str string) (color.NRGBA, error) {
	c, err := css.Parse(str)
	if err != nil {
		return color.NRGBA{}, err
	}

	return color.NRGBA{
		R: uint8(255 * c.R),
		G: uint8(255 * c.G),
		B: uint8(255 * c.B),
		A: uint8(255 * c.A),
	}, nil
}

// FadeColorValue returns the parsed fade colour, or black if it does not
// parse.
func (c *Config) FadeColorValue() color.NRGBA {
	clr, err := ParseColor(c.FadeColor)
	if err != nil {
		return color.NRGBA{A: 255}
	}
	return clr
}
