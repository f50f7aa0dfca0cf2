package config

import "os"

// Environment variables that override config.json
const (
	EnvConfig     = "SLIDEFX_CONFIG"
	EnvLogLevel   = "SLIDEFX_LOG_LEVEL"
	EnvEffectsDir = "SLIDEFX_EFFECTS_DIR"
	EnvCacheDir   = "SLIDEFX_CACHE_DIR"
)

// ApplyEnv overrides config fields from the environment. Unset variables
// leave the field alone.
func ApplyEnv(config *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv(EnvEffectsDir); v != "" {
		config.EffectsDir = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		config.CacheDir = v
	}
}

// ConfigPath returns the config file to use: $SLIDEFX_CONFIG if set,
// otherwise config.json in the base directory.
func ConfigPath() (string, error) {
	if v := os.Getenv(EnvConfig); v != "" {
		return v, nil
	}
	return GetConfigPath()
}
