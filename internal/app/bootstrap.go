package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mcpcoordinator/pkg/logging"
)

// coordinatorVersion populates the version in the MCP initialize
// response's serverInfo. Set via SetVersion at build time.
var coordinatorVersion = "dev"

// SetVersion injects the build-time version, mirrored from cmd.SetVersion.
func SetVersion(v string) { coordinatorVersion = v }

const defaultEventLogFile = "events.db"

// Application is the coordinator process: a bootstrapped Services graph
// plus the execution mode that drives it to completion.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration, opens the Event Log, and wires
// every component of the coordination service. It performs no network
// listen — that happens in Run.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	logLevel := logging.LevelInfo
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	logging.InitForCLI(logLevel, os.Stderr)

	eventLogPath, err := defaultEventLogPath()
	if err != nil {
		return nil, fmt.Errorf("resolve event log path: %w", err)
	}

	services, err := InitializeServices(ctx, cfg, eventLogPath)
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Run starts every configured Transport Adapter and the configuration
// watcher (if enabled), blocking until ctx is cancelled or a fatal
// adapter error occurs.
func (a *Application) Run(ctx context.Context) error {
	return runServices(ctx, a.services)
}

func defaultEventLogPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "mcpcoordinator")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultEventLogFile), nil
}

var _ io.Closer = (*Services)(nil)
