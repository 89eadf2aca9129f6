// Package logging provides structured logging for the coordination proxy,
// built on the standard slog package.
//
// # Usage
//
//	import "mcpcoordinator/pkg/logging"
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("bootstrap", "application starting up")
//	logging.Debug("config", "loaded configuration from %s", configPath)
//	logging.Warn("mcpserver", "backend %s not responding", name)
//	logging.Error("eventlog", err, "failed to append event")
//
// # Components
//
// Log calls are tagged with a component string identifying the originating
// subsystem, e.g. "eventlog", "session", "agent", "task", "mcpserver",
// "toolregistry", "router", "transport", "codebase".
//
// # Audit events
//
// Session creation and session revocation are recorded with Audit, which tags
// output with an [AUDIT] prefix and truncates session tokens via
// TruncateSessionID so full credentials never reach log storage.
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "create_session",
//	    Outcome:   "success",
//	    SessionID: token,
//	    AgentID:   agentID,
//	})
package logging
