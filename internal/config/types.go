package config

// Document is the external-server configuration document (spec §6): a
// JSON file listing the backend MCP servers for the Supervisor to
// manage, plus global Supervisor tuning.
type Document struct {
	Servers map[string]ServerSpec `json:"servers"`
	Config  GlobalConfig          `json:"config"`
}

// ServerType is the transport a backend MCP server speaks. stdio is
// the only transport the Supervisor currently launches.
type ServerType string

const (
	ServerTypeStdio ServerType = "stdio"
)

// ServerSpec is one entry of Document.Servers.
type ServerSpec struct {
	Type        ServerType        `json:"type"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	AutoRestart bool              `json:"auto_restart"`
	Description string            `json:"description,omitempty"`
	RemoteSafe  bool              `json:"remote_safe,omitempty"`
}

// GlobalConfig tunes Supervisor behavior across all backends.
type GlobalConfig struct {
	StartupTimeoutMillis    int `json:"startup_timeout_ms"`
	HeartbeatIntervalMillis int `json:"heartbeat_interval_ms"`
	AutoRestartDelayMillis  int `json:"auto_restart_delay_ms"`
	MaxRestartAttempts      int `json:"max_restart_attempts"`
}

// InterfaceMode selects which Transport Adapters the coordinator runs.
type InterfaceMode string

const (
	InterfaceModeStdio     InterfaceMode = "stdio"
	InterfaceModeHTTP      InterfaceMode = "http"
	InterfaceModeWebSocket InterfaceMode = "websocket"
	InterfaceModeAll       InterfaceMode = "all"
)

// Runtime is the environment-variable-driven process configuration
// (spec §6's environment variables table).
type Runtime struct {
	NATSHost      string
	NATSPort      string
	InterfaceMode InterfaceMode
	HTTPPort      string
	WSPort        string
}
