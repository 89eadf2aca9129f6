package mcpserver

import "time"

// HealthState is a backend's lifecycle state as observed by the
// Supervisor (spec §4.7).
type HealthState string

const (
	HealthStarting   HealthState = "starting"
	HealthReady      HealthState = "ready"
	HealthDead       HealthState = "dead"
	HealthRestarting HealthState = "restarting"

	// HealthDraining is a transient state entered only when the
	// Supervisor itself asks a backend to stop (RemoveBackend, or a
	// config-reload swap), distinguishing "asked to stop" from "it
	// died" — the latter goes straight to HealthDead.
	HealthDraining HealthState = "draining"
)

// Spec is one entry of the external-server configuration document
// (spec §5): `{name, command, args, env, auto_restart,
// max_restart_attempts, restart_delay_ms, startup_timeout_ms}`.
type Spec struct {
	Name                string
	Command             string
	Args                []string
	Env                 map[string]string
	Description         string
	AutoRestart         bool
	MaxRestartAttempts  int
	RestartDelayMillis  int
	StartupTimeoutMillis int

	// RemoteSafe marks every tool this backend exposes as visible to
	// remote callers under the Tool Filter's remote context. Backends
	// default to local-only: most wrap filesystem or process access on
	// the coordinator's own host.
	RemoteSafe bool
}

func (s Spec) startupTimeout() time.Duration {
	if s.StartupTimeoutMillis <= 0 {
		return DefaultStartupTimeout
	}
	return time.Duration(s.StartupTimeoutMillis) * time.Millisecond
}

func (s Spec) restartDelay() time.Duration {
	if s.RestartDelayMillis <= 0 {
		return InitialBackoff
	}
	return time.Duration(s.RestartDelayMillis) * time.Millisecond
}

func (s Spec) maxRestartAttempts() int {
	if s.MaxRestartAttempts <= 0 {
		return DefaultMaxRestartAttempts
	}
	return s.MaxRestartAttempts
}

// Status is the read-only snapshot returned to the Tool Registry and
// the server/board diagnostics endpoint.
type Status struct {
	Name                string
	State               HealthState
	ToolCount           int
	ConsecutiveFailures int
	LastAttempt         *time.Time
	NextRetryAfter      *time.Time
	LastError           string
	RestartCount        int
	RemoteSafe          bool
}
