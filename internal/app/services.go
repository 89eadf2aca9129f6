package app

import (
	"context"
	"fmt"
	"time"

	"mcpcoordinator/internal/agent"
	"mcpcoordinator/internal/codebase"
	"mcpcoordinator/internal/config"
	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/inbox"
	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/internal/router"
	"mcpcoordinator/internal/session"
	"mcpcoordinator/internal/task"
	"mcpcoordinator/internal/toolregistry"
	"mcpcoordinator/internal/transport"
	"mcpcoordinator/pkg/logging"
)

const sessionTTL = 24 * time.Hour

// openEventLog connects to the NATS JetStream-backed Event Log named by
// the runtime's NATS host/port; if NATS is unreachable it falls back to
// the embedded bbolt log at fallbackPath so the coordinator still
// starts, using bbolt as a file-backed WAL alternative.
func openEventLog(ctx context.Context, rt config.Runtime, fallbackPath string) (eventlog.Log, error) {
	url := fmt.Sprintf("nats://%s:%s", rt.NATSHost, rt.NATSPort)
	log, err := eventlog.NewNATSLog(ctx, url)
	if err == nil {
		return log, nil
	}
	logging.Warn("app", "connect NATS event log at %s: %v; falling back to embedded log", url, err)
	return eventlog.NewBoltLog(fallbackPath)
}

// Services holds every wired component the coordinator needs to run:
// the Event Log, the coordination-state registries, the Supervisor and
// its backend set, the Tool Registry, the Router, and whichever
// Transport Adapters the configured interface mode calls for.
type Services struct {
	Log        eventlog.Log
	Sessions   *session.Manager
	Agents     *agent.Registry
	Codebases  *codebase.Registry
	Tasks      *task.Registry
	Supervisor *mcpserver.Supervisor
	Registry   *toolregistry.Registry
	Router     *router.Router
	Watcher    *config.Watcher

	Stdio *transport.StdioAdapter
	HTTP  *transport.HTTPAdapter
	WS    *transport.WebSocketAdapter
}

// restoreState replays each registry's stream from the start of the
// Event Log so in-memory state survives a restart: agents and codebases
// before tasks, since a replayed task may reference either.
func restoreState(log eventlog.Log, agents *agent.Registry, codebases *codebase.Registry, tasks *task.Registry) error {
	agentEvents, err := log.ReplayFrom("agents", 0)
	if err != nil {
		return fmt.Errorf("replay agents stream: %w", err)
	}
	agents.Restore(agentEvents)

	codebaseEvents, err := log.ReplayFrom("codebases", 0)
	if err != nil {
		return fmt.Errorf("replay codebases stream: %w", err)
	}
	codebases.Restore(codebaseEvents)

	taskEvents, err := log.ReplayFrom("tasks", 0)
	if err != nil {
		return fmt.Errorf("replay tasks stream: %w", err)
	}
	tasks.Restore(taskEvents)

	return nil
}

// InitializeServices wires the full component graph: session manager,
// agent/codebase/task registries restored from the Event Log, the
// backend supervisor, and the tool registry. It loads the external-server
// configuration document named by cfg.ConfigPath and starts every
// backend it names.
func InitializeServices(ctx context.Context, cfg *Config, eventLogPath string) (*Services, error) {
	log, err := openEventLog(ctx, cfg.Runtime, eventLogPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	sessions := session.NewManager(sessionTTL)
	agents := agent.New(sessions, log)
	codebases := codebase.New(log)
	tasks := task.New(agents, inbox.NewManager(), codebases, log)

	if err := restoreState(log, agents, codebases, tasks); err != nil {
		return nil, fmt.Errorf("restore state from event log: %w", err)
	}

	supervisor := mcpserver.NewSupervisor(log)

	// Subscribed before any backend starts so that no ready/dead
	// transition is missed; each one refreshes the Tool Registry below.
	backendEvents, err := log.Subscribe(ctx, "backends")
	if err != nil {
		return nil, fmt.Errorf("subscribe to backends stream: %w", err)
	}

	doc, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load server configuration: %w", err)
	}
	for name, spec := range doc.Servers {
		if err := supervisor.AddBackend(config.ToBackendSpec(name, spec, doc.Config)); err != nil {
			logging.Warn("app", "add backend %s: %v", name, err)
		}
	}

	var watcher *config.Watcher
	if cfg.Watch && cfg.ConfigPath != "" {
		watcher = config.NewWatcher(cfg.ConfigPath, doc, supervisor)
	}

	native := toolregistry.NewNative(agents, tasks, codebases)
	registry := toolregistry.New(native, supervisor, log)
	go func() {
		for ev := range backendEvents {
			// The registry's own collision warnings carry "warning".
			if ev.Details["warning"] == "" {
				registry.Refresh()
			}
		}
	}()

	rt := router.New(registry, sessions, agents, tasks, log, coordinatorVersion)

	svc := &Services{
		Log:        log,
		Sessions:   sessions,
		Agents:     agents,
		Codebases:  codebases,
		Tasks:      tasks,
		Supervisor: supervisor,
		Registry:   registry,
		Router:     rt,
		Watcher:    watcher,
	}

	switch cfg.Runtime.InterfaceMode {
	case config.InterfaceModeStdio:
		svc.Stdio = transport.NewStdioAdapter(rt)
	case config.InterfaceModeHTTP:
		svc.HTTP = transport.NewHTTPAdapter(rt, ":"+cfg.Runtime.HTTPPort)
	case config.InterfaceModeWebSocket:
		svc.WS = transport.NewWebSocketAdapter(rt, ":"+cfg.Runtime.WSPort)
	default:
		svc.Stdio = transport.NewStdioAdapter(rt)
		svc.HTTP = transport.NewHTTPAdapter(rt, ":"+cfg.Runtime.HTTPPort)
		svc.WS = transport.NewWebSocketAdapter(rt, ":"+cfg.Runtime.WSPort)
	}

	return svc, nil
}

// Close releases the Services' held resources (the event log and every
// running backend process).
func (s *Services) Close() error {
	if err := s.Supervisor.Close(); err != nil {
		logging.Warn("app", "supervisor close: %v", err)
	}
	s.Sessions.Stop()
	s.Agents.Stop()
	return s.Log.Close()
}
