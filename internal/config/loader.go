package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/pkg/logging"
)

// Load reads the external-server configuration document from path. A
// missing file is not an error: it yields DefaultDocument, matching
// the coordinator's "works with zero backends configured" posture.
func Load(path string) (Document, error) {
	doc := DefaultDocument()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("config", "no server configuration found at %s, using defaults", path)
			return doc, nil
		}
		return Document{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyConfigDefaults(&doc.Config)

	if errs := Validate(doc); errs.HasErrors() {
		return Document{}, fmt.Errorf("config: %s: %w", path, errs)
	}

	logging.Info("config", "loaded %d backend server(s) from %s", len(doc.Servers), path)
	return doc, nil
}

func applyConfigDefaults(c *GlobalConfig) {
	defaults := DefaultDocument().Config
	if c.StartupTimeoutMillis <= 0 {
		c.StartupTimeoutMillis = defaults.StartupTimeoutMillis
	}
	if c.HeartbeatIntervalMillis <= 0 {
		c.HeartbeatIntervalMillis = defaults.HeartbeatIntervalMillis
	}
	if c.AutoRestartDelayMillis <= 0 {
		c.AutoRestartDelayMillis = defaults.AutoRestartDelayMillis
	}
	if c.MaxRestartAttempts <= 0 {
		c.MaxRestartAttempts = defaults.MaxRestartAttempts
	}
}

// ToBackendSpec converts one document entry into the Supervisor's own
// Spec, folding in the document's global timing defaults.
func ToBackendSpec(name string, s ServerSpec, g GlobalConfig) mcpserver.Spec {
	return mcpserver.Spec{
		Name:                 name,
		Command:              s.Command,
		Args:                 s.Args,
		Env:                  s.Env,
		Description:          s.Description,
		AutoRestart:          s.AutoRestart,
		MaxRestartAttempts:   g.MaxRestartAttempts,
		RestartDelayMillis:   g.AutoRestartDelayMillis,
		StartupTimeoutMillis: g.StartupTimeoutMillis,
		RemoteSafe:           s.RemoteSafe,
	}
}
