package config

import "os"

const (
	envNATSHost      = "NATS_HOST"
	envNATSPort      = "NATS_PORT"
	envInterfaceMode = "MCP_INTERFACE_MODE"
	envHTTPPort      = "MCP_HTTP_PORT"
	envWSPort        = "MCP_WS_PORT"
)

// RuntimeFromEnv returns the process configuration, starting from
// DefaultRuntime and overriding each field present in the environment.
func RuntimeFromEnv() Runtime {
	rt := DefaultRuntime()

	if v := os.Getenv(envNATSHost); v != "" {
		rt.NATSHost = v
	}
	if v := os.Getenv(envNATSPort); v != "" {
		rt.NATSPort = v
	}
	if v := os.Getenv(envInterfaceMode); v != "" {
		rt.InterfaceMode = InterfaceMode(v)
	}
	if v := os.Getenv(envHTTPPort); v != "" {
		rt.HTTPPort = v
	}
	if v := os.Getenv(envWSPort); v != "" {
		rt.WSPort = v
	}

	return rt
}
