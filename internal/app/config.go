package app

import (
	"os"

	"github.com/joho/godotenv"

	"mcpcoordinator/internal/config"
	"mcpcoordinator/pkg/logging"
)

// Config holds the application's bootstrap configuration: CLI flags
// layered over environment variable overrides.
type Config struct {
	// Debug enables verbose logging.
	Debug bool

	// ConfigPath is the external-server configuration document to load.
	// Empty means no backends are started.
	ConfigPath string

	// Watch enables live-reload of ConfigPath via an fsnotify watcher.
	Watch bool

	// Runtime carries the resolved environment overrides (NATS host/port,
	// interface mode, HTTP/WS ports).
	Runtime config.Runtime
}

// NewConfig builds a Config from CLI flags, layering the process
// environment (optionally populated from a .env file in the working
// directory) on top of flag defaults.
func NewConfig(debug bool, configPath string, watch bool) *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Warn("app", "load .env: %v", err)
	}

	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Watch:      watch,
		Runtime:    config.RuntimeFromEnv(),
	}
}