package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Empty(t, doc.Servers)
	require.Equal(t, DefaultDocument().Config, doc.Config)
}

func TestLoad_ParsesDocumentAndFillsConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	body := `{
		"servers": {
			"fs": {"type": "stdio", "command": "mcp-fs", "args": ["--root", "/tmp"], "auto_restart": true}
		},
		"config": {"max_restart_attempts": 3}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1)
	require.Equal(t, "mcp-fs", doc.Servers["fs"].Command)
	require.Equal(t, 3, doc.Config.MaxRestartAttempts)
	require.Equal(t, DefaultDocument().Config.StartupTimeoutMillis, doc.Config.StartupTimeoutMillis)
}

func TestLoad_RejectsUnknownServerType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	body := `{"servers": {"bad": {"type": "http", "command": "x"}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsEmptyCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	body := `{"servers": {"bad": {"type": "stdio", "command": ""}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestToBackendSpec_FoldsGlobalTiming(t *testing.T) {
	spec := ToBackendSpec("fs", ServerSpec{Command: "mcp-fs", AutoRestart: true}, GlobalConfig{
		StartupTimeoutMillis:   5000,
		AutoRestartDelayMillis: 1000,
		MaxRestartAttempts:     2,
	})

	require.Equal(t, "fs", spec.Name)
	require.Equal(t, "mcp-fs", spec.Command)
	require.Equal(t, 5000, spec.StartupTimeoutMillis)
	require.Equal(t, 1000, spec.RestartDelayMillis)
	require.Equal(t, 2, spec.MaxRestartAttempts)
}
