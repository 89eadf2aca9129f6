// Package config loads the external-server configuration document
// (spec §6): a JSON file naming the backend MCP servers the Supervisor
// should launch, plus global Supervisor timing. It also resolves the
// process's environment variable overrides (NATS_HOST, NATS_PORT,
// MCP_INTERFACE_MODE, MCP_HTTP_PORT, MCP_WS_PORT) and watches the
// configuration file for live edits.
//
// Loading is grounded on the retrieval pack's own config loader
// (os.ReadFile with a logged fallback to defaults on a missing file);
// the live-reload watcher is grounded on the pack's fsnotify-based
// filesystem detector (debounced events, a single watch goroutine).
package config
