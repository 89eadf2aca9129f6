package config

// DefaultDocument returns the configuration used when no server
// configuration file is present: no backends, conservative Supervisor
// tuning.
func DefaultDocument() Document {
	return Document{
		Servers: map[string]ServerSpec{},
		Config: GlobalConfig{
			StartupTimeoutMillis:    10_000,
			HeartbeatIntervalMillis: 30_000,
			AutoRestartDelayMillis:  2_000,
			MaxRestartAttempts:      5,
		},
	}
}

// DefaultRuntime returns the process configuration used when no
// environment variable overrides it.
func DefaultRuntime() Runtime {
	return Runtime{
		NATSHost:      "localhost",
		NATSPort:      "4222",
		InterfaceMode: InterfaceModeAll,
		HTTPPort:      "8090",
		WSPort:        "8091",
	}
}
