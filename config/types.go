package config

// Config is the application configuration stored in config.json
type Config struct {
	Version       int          `json:"version"`
	DefaultEffect string       `json:"defaultEffect"` // Effect id used when a clip's effect is missing or broken
	TextureTier   string       `json:"textureTier"`   // "preview", "standard" or "export"
	FPS           int          `json:"fps"`           // Export frame rate, 1-120
	Smoothness    float64      `json:"smoothness"`    // Edge softness for effects that use it, 0.0-1.0
	FadeColor     string       `json:"fadeColor"`     // CSS colour string
	EffectsDir    string       `json:"effectsDir,omitempty"`
	EffectsBundle string       `json:"effectsBundle,omitempty"`
	CacheDir      string       `json:"cacheDir,omitempty"`
	LogLevel      string       `json:"logLevel"`
	Window        WindowConfig `json:"window"`
}

// WindowConfig contains preview window dimensions
type WindowConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TextureTiers lists the valid textureTier values
var TextureTiers = []string{"preview", "standard", "export"}

// LogLevels lists the valid logLevel values
var LogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		DefaultEffect: "fade",
		TextureTier:   "standard",
		FPS:           30,
		Smoothness:    0.1,
		FadeColor:     "black",
		LogLevel:      "info",
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
		},
	}
}
