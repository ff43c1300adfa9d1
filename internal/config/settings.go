// Package config loads the gateway's own settings file. Server declarations
// are not configured here; those come from discovery.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// SettingsFileName is the optional settings file inside the config directory.
const SettingsFileName = "portal.toml"

// CORSConfig configures cross-origin access for the dashboard.
type CORSConfig struct {
	Enabled          bool     `toml:"enabled"`
	AllowOrigins     []string `toml:"allow_origins"`
	AllowMethods     []string `toml:"allow_methods"`
	AllowedHeaders   []string `toml:"allowed_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
	MaxAgeSeconds    int      `toml:"max_age_seconds"`
}

// Settings are the gateway's own knobs. Flags and MCP_PORTAL_* environment
// variables override anything loaded from the settings file.
type Settings struct {
	Host                   string     `toml:"host"`
	Port                   int        `toml:"port"`
	LogLevel               string     `toml:"log_level"`
	ShutdownTimeoutSeconds int        `toml:"shutdown_timeout_seconds"`
	CORS                   CORSConfig `toml:"cors"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Host:                   "0.0.0.0",
		Port:                   8020,
		LogLevel:               "info",
		ShutdownTimeoutSeconds: 5,
		CORS: CORSConfig{
			Enabled:        true,
			AllowOrigins:   []string{"*"},
			AllowMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
			MaxAgeSeconds:  300,
		},
	}
}

// Load reads portal.toml from the config directory, layered over the
// defaults. A missing file is not an error.
func Load(configDir string) (Settings, error) {
	settings := Default()

	path := filepath.Join(configDir, SettingsFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("could not stat settings file '%s': %w", path, err)
	}

	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return Default(), fmt.Errorf("could not parse settings file '%s': %w", path, err)
	}

	return settings, nil
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (s Settings) ShutdownTimeout() time.Duration {
	secs := s.ShutdownTimeoutSeconds
	if secs <= 0 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}
