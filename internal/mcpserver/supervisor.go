// Package mcpserver implements the External-Server Supervisor (C7): it
// spawns configured backend MCP servers as child processes, tracks their
// health, and auto-restarts them with exponential backoff.
//
// Request framing and per-request id correlation for the stdio transport
// are handled entirely by github.com/mark3labs/mcp-go's client package
// (one writer goroutine, one reader goroutine demultiplexing responses by
// id into waiter channels). Supervisor only adds the process-lifecycle
// and backoff layer on top.
package mcpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultStartupTimeout bounds the initialize+tools/list readiness probe
// when a backend spec does not set startup_timeout_ms.
const DefaultStartupTimeout = 10 * time.Second

// DefaultCallTimeout bounds a single CallTool round trip.
const DefaultCallTimeout = 30 * time.Second

// DefaultMaxRestartAttempts caps automatic restarts when a backend spec
// does not set max_restart_attempts.
const DefaultMaxRestartAttempts = 5

// DefaultHeartbeatInterval is the period between health probes of an
// already-ready backend.
const DefaultHeartbeatInterval = 30 * time.Second

// UnreachableThreshold is the number of consecutive health-check probe
// failures, once a backend has been ready, before it is declared dead.
const UnreachableThreshold = 2

// Exponential backoff bounds for restart scheduling, following the same
// connectivity-failure tracking shape as a typical supervised-service
// restart loop.
const (
	InitialBackoff    = 30 * time.Second
	MaxBackoff        = 30 * time.Minute
	BackoffMultiplier = 2.0
)

// RestartGracePeriod is the pause between closing a dead client and
// spawning its replacement, letting the old subprocess release its pipes.
const RestartGracePeriod = 200 * time.Millisecond

// ErrBackendTimeout is returned when a call exceeds its deadline.
var ErrBackendTimeout = fmt.Errorf("backend_timeout")

// ErrBackendNotReady is returned when a call targets a backend that is
// not currently in the ready state.
var ErrBackendNotReady = fmt.Errorf("backend not ready")

// ErrUnknownBackend is returned when referencing a backend name the
// Supervisor never registered.
var ErrUnknownBackend = fmt.Errorf("unknown backend")

// newClientFunc constructs the MCPClient for a backend; overridable in
// tests to avoid spawning real processes.
type newClientFunc func(spec Spec) MCPClient

type backend struct {
	spec Spec

	mu                  sync.Mutex
	client              MCPClient
	state               HealthState
	tools               []mcp.Tool
	healthFailures      int
	consecutiveFailures int // restart attempts since the last success
	restartCount        int
	lastAttempt         *time.Time
	nextRetryAfter      *time.Time
	lastErr             error

	cancel context.CancelFunc
}

// Supervisor owns the fleet of backend MCP server processes.
type Supervisor struct {
	mu        sync.RWMutex
	backends  map[string]*backend
	log       eventlog.Log
	newClient newClientFunc
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor(log eventlog.Log) *Supervisor {
	return NewSupervisorWithClientFactory(log, func(spec Spec) MCPClient {
		return NewStdioClientWithEnv(spec.Command, spec.Args, spec.Env)
	})
}

// NewSupervisorWithClientFactory creates a Supervisor that builds
// backend clients via factory instead of always spawning a real stdio
// process, letting other packages' tests inject a fake MCPClient.
func NewSupervisorWithClientFactory(log eventlog.Log, factory func(Spec) MCPClient) *Supervisor {
	return &Supervisor{
		backends:  make(map[string]*backend),
		log:       log,
		newClient: factory,
	}
}

// AddBackend registers spec and starts it asynchronously. Returns an
// error only if the name is already registered.
func (s *Supervisor) AddBackend(spec Spec) error {
	s.mu.Lock()
	if _, exists := s.backends[spec.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("backend %s already registered", spec.Name)
	}
	b := &backend{spec: spec, state: HealthStarting}
	s.backends[spec.Name] = b
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	go s.startBackend(ctx, b)
	return nil
}

// RemoveBackend stops and forgets a backend entirely. The backend passes
// through HealthDraining while its process winds down, so a concurrent
// Status/ListStatuses call during the stop sees a deliberate shutdown
// rather than an unreachable/dead backend.
func (s *Supervisor) RemoveBackend(name string) error {
	s.mu.RLock()
	b, ok := s.backends[name]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownBackend
	}

	b.mu.Lock()
	b.state = HealthDraining
	if b.cancel != nil {
		b.cancel()
	}
	client := b.client
	b.client = nil
	b.mu.Unlock()

	s.mu.Lock()
	delete(s.backends, name)
	s.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}

// startBackend runs the initialize+tools/list readiness probe. A failure
// here is a failed start attempt: it goes straight to restart scheduling
// (if auto_restart) rather than through the ready-backend health-check
// threshold, since there is no established connection to be "flaky" yet.
func (s *Supervisor) startBackend(ctx context.Context, b *backend) {
	b.mu.Lock()
	b.state = HealthStarting
	now := time.Now()
	b.lastAttempt = &now
	client := s.newClient(b.spec)
	b.client = client
	timeout := b.spec.startupTimeout()
	b.mu.Unlock()

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Initialize(initCtx); err != nil {
		s.onStartupFailure(ctx, b, fmt.Errorf("initialize: %w", err))
		return
	}

	tools, err := client.ListTools(initCtx)
	if err != nil {
		s.onStartupFailure(ctx, b, fmt.Errorf("tools/list: %w", err))
		return
	}

	b.mu.Lock()
	b.state = HealthReady
	b.tools = tools
	b.consecutiveFailures = 0
	b.healthFailures = 0
	b.nextRetryAfter = nil
	b.lastErr = nil
	b.mu.Unlock()

	logging.Info("mcpserver", "backend %s ready with %d tools", b.spec.Name, len(tools))
	s.appendEvent(eventlog.KindBackendReady, b.spec.Name, map[string]string{"tool_count": fmt.Sprint(len(tools))})

	go s.healthCheckLoop(ctx, b)
}

// onStartupFailure records a failed start attempt and, if auto_restart is
// configured, schedules the next attempt with exponential backoff.
func (s *Supervisor) onStartupFailure(ctx context.Context, b *backend, err error) {
	b.mu.Lock()
	b.state = HealthDead
	b.lastErr = err
	if b.client != nil {
		_ = b.client.Close()
		b.client = nil
	}
	b.tools = nil
	b.mu.Unlock()

	logging.Warn("mcpserver", "backend %s failed to start: %v", b.spec.Name, err)
	s.appendEvent(eventlog.KindBackendDead, b.spec.Name, map[string]string{"error": err.Error()})

	if !b.spec.AutoRestart {
		return
	}
	s.scheduleRestart(ctx, b)
}

// healthCheckLoop periodically probes a ready backend with tools/list.
// UnreachableThreshold consecutive failures declare the backend dead and
// end the loop. Context cancellation via RemoveBackend, or finding the
// backend no longer ready or its client gone, ends the loop without
// changing the backend's state.
func (s *Supervisor) healthCheckLoop(ctx context.Context, b *backend) {
	ticker := time.NewTicker(DefaultHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.state != HealthReady || b.client == nil {
			b.mu.Unlock()
			return
		}
		client := b.client
		b.mu.Unlock()

		probeCtx, cancel := context.WithTimeout(ctx, b.spec.startupTimeout())
		_, err := client.ListTools(probeCtx)
		cancel()

		if err == nil {
			b.mu.Lock()
			b.healthFailures = 0
			b.mu.Unlock()
			continue
		}

		b.mu.Lock()
		b.healthFailures++
		failures := b.healthFailures
		b.lastErr = err
		b.mu.Unlock()

		logging.Warn("mcpserver", "backend %s health probe failure #%d: %v", b.spec.Name, failures, err)

		if failures < UnreachableThreshold {
			continue
		}

		b.mu.Lock()
		b.state = HealthDead
		if b.client != nil {
			_ = b.client.Close()
			b.client = nil
		}
		b.tools = nil
		b.mu.Unlock()

		s.appendEvent(eventlog.KindBackendDead, b.spec.Name, map[string]string{"error": err.Error()})

		if b.spec.AutoRestart {
			s.scheduleRestart(ctx, b)
		}
		return
	}
}

// scheduleRestart waits out the exponential backoff window, then retries
// startBackend, up to the backend's configured max_restart_attempts.
func (s *Supervisor) scheduleRestart(ctx context.Context, b *backend) {
	b.mu.Lock()
	b.restartCount++
	b.consecutiveFailures++
	attempt := b.consecutiveFailures
	max := b.spec.maxRestartAttempts()
	b.mu.Unlock()

	if attempt > max {
		logging.Error("mcpserver", fmt.Errorf("exhausted restarts"), "backend %s exhausted %d restart attempts, permanently dead", b.spec.Name, max)
		s.appendEvent(eventlog.KindBackendExhausted, b.spec.Name, map[string]string{"attempts": fmt.Sprint(max)})
		return
	}

	delay := backoffForAttempt(b.spec.restartDelay(), attempt)
	nextRetry := time.Now().Add(delay)
	b.mu.Lock()
	b.nextRetryAfter = &nextRetry
	b.state = HealthRestarting
	b.mu.Unlock()

	s.appendEvent(eventlog.KindBackendRestarted, b.spec.Name, map[string]string{
		"attempt": fmt.Sprint(attempt),
		"delay":   delay.String(),
	})

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	time.Sleep(RestartGracePeriod)
	s.startBackend(ctx, b)
}

// backoffForAttempt computes initial * multiplier^(attempt-1), capped.
func backoffForAttempt(initial time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * BackoffMultiplier)
		if d > MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}

// CallTool invokes name on backend, bounding the call with a per-request
// timeout and mapping timeout/not-ready conditions to the taxonomy the
// Router expects.
func (s *Supervisor) CallTool(ctx context.Context, backendName, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	b, ok := s.backends[backendName]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownBackend
	}

	b.mu.Lock()
	if b.state != HealthReady || b.client == nil {
		b.mu.Unlock()
		return nil, ErrBackendNotReady
	}
	client := b.client
	b.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	result, err := client.CallTool(callCtx, name, args)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, ErrBackendTimeout
		}
		return nil, err
	}
	return result, nil
}

// Tools returns the cached tool catalog for backendName and whether the
// backend is currently ready.
func (s *Supervisor) Tools(backendName string) ([]mcp.Tool, bool) {
	s.mu.RLock()
	b, ok := s.backends[backendName]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != HealthReady {
		return nil, false
	}
	out := make([]mcp.Tool, len(b.tools))
	copy(out, b.tools)
	return out, true
}

// Status returns a diagnostic snapshot of backendName.
func (s *Supervisor) Status(backendName string) (Status, bool) {
	s.mu.RLock()
	b, ok := s.backends[backendName]
	s.mu.RUnlock()
	if !ok {
		return Status{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Name:                b.spec.Name,
		State:               b.state,
		ToolCount:           len(b.tools),
		ConsecutiveFailures: b.consecutiveFailures,
		LastAttempt:         b.lastAttempt,
		NextRetryAfter:      b.nextRetryAfter,
		RestartCount:        b.restartCount,
		RemoteSafe:          b.spec.RemoteSafe,
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	return st, true
}

// ListStatuses returns a Status snapshot for every registered backend.
func (s *Supervisor) ListStatuses() []Status {
	s.mu.RLock()
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	s.mu.RUnlock()

	out := make([]Status, 0, len(names))
	for _, name := range names {
		if st, ok := s.Status(name); ok {
			out = append(out, st)
		}
	}
	return out
}

// Close stops every backend process.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		_ = s.RemoveBackend(name)
	}
	return nil
}

func (s *Supervisor) appendEvent(kind eventlog.Kind, backendName string, details map[string]string) {
	if s.log == nil {
		return
	}
	_, _ = s.log.Append("backends", eventlog.Event{
		Kind:    kind,
		Time:    time.Now(),
		Details: mergeDetails(backendName, details),
	})
}

func mergeDetails(backendName string, details map[string]string) map[string]string {
	out := map[string]string{"backend": backendName}
	for k, v := range details {
		out[k] = v
	}
	return out
}
