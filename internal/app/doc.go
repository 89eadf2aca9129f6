// Package app wires the coordinator's component graph and drives its
// lifecycle: configuration, service construction, and the run loop that
// starts the configured Transport Adapters and blocks for shutdown.
//
// # Components
//
//   - bootstrap.go: NewApplication loads the external-server configuration
//     document, opens the Event Log (NATS with a bbolt fallback), and
//     constructs every registry, the Supervisor, and the Router.
//   - config.go: Config holds CLI-flag-derived settings layered over
//     environment overrides resolved via internal/config.RuntimeFromEnv.
//   - services.go: Services holds the fully wired graph — Sessions, Agents,
//     Codebases, Tasks, Supervisor, Registry, Router, an optional config
//     Watcher, and whichever Transport Adapters the interface mode selects.
//   - modes.go: runServices starts the adapters and watcher as goroutines
//     and blocks on SIGINT/SIGTERM, performing an ordered Close on exit.
package app
