// Package agent implements the Agent Registry (C3): known agents, their
// capabilities, heartbeat timestamps, and online/stale status.
//
// Built on a GenericServiceInstance-style lifecycle wrapper — state
// tracking, health-threshold counters — adapted from a backend-service
// lifecycle to an agent liveness lifecycle, and on the dependency
// graph's stable-id keying.
package agent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/session"
	"mcpcoordinator/pkg/logging"
)

// State is an agent's lifecycle state.
type State string

const (
	StateRegistered  State = "registered"
	StateWorking     State = "working"
	StateIdle        State = "idle"
	StateStale       State = "stale"
	StateUnregistered State = "unregistered"
)

// DefaultStaleThreshold is how long since the last heartbeat before an
// agent is marked stale.
const DefaultStaleThreshold = 90 * time.Second

// DefaultHeartbeatInterval is the cadence of the background staleness tick.
const DefaultHeartbeatInterval = 15 * time.Second

// Agent is a single registered coordination participant.
type Agent struct {
	ID                   string
	Name                 string
	Capabilities         []string
	CodebaseID           string
	CrossCodebaseCapable bool
	SessionToken         string
	LastHeartbeat        time.Time
	State                State
	RegisteredAt         time.Time
}

// HasCapabilities reports whether a has every capability in required.
func (a *Agent) HasCapabilities(required []string) bool {
	set := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		set[c] = true
	}
	for _, r := range required {
		if !set[r] {
			return false
		}
	}
	return true
}

// Registry tracks all known agents and owns their lifecycle transitions.
// Each agent's own fields are only ever mutated while holding the
// registry's single lock, keeping per-agent operations linearizable.
type Registry struct {
	mu             sync.RWMutex
	agents         map[string]*Agent
	byName         map[string]string
	staleThreshold time.Duration

	sessions *session.Manager
	log      eventlog.Log

	stop chan struct{}
	done chan struct{}
}

// New creates an agent Registry. sessions issues and validates the
// session tokens returned by Register; log receives a C1 event for every
// lifecycle transition.
func New(sessions *session.Manager, log eventlog.Log) *Registry {
	r := &Registry{
		agents:         make(map[string]*Agent),
		byName:         make(map[string]string),
		staleThreshold: DefaultStaleThreshold,
		sessions:       sessions,
		log:            log,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	go r.staleTickLoop()
	return r
}

// Stop halts the background staleness tick.
func (r *Registry) Stop() {
	close(r.stop)
	<-r.done
}

// Restore rebuilds the in-memory agent table from a replayed "agents"
// stream, reconstructing identity, capabilities, and liveness state
// without reissuing sessions — a restored agent must re-register to
// obtain a fresh session token. Must be called before the Registry
// starts serving requests.
func (r *Registry) Restore(events []eventlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case eventlog.KindAgentRegistered:
			name := ev.Details["name"]
			a := &Agent{
				ID:                   ev.AgentID,
				Name:                 name,
				Capabilities:         splitNonEmpty(ev.Details["capabilities"]),
				CodebaseID:           ev.Details["codebase_id"],
				CrossCodebaseCapable: ev.Details["cross_codebase_capable"] == "true",
				LastHeartbeat:        ev.Time,
				State:                StateIdle,
				RegisteredAt:         ev.Time,
			}
			r.agents[a.ID] = a
			r.byName[name] = a.ID
		case eventlog.KindAgentUnregistered:
			if a, ok := r.agents[ev.AgentID]; ok {
				delete(r.agents, ev.AgentID)
				delete(r.byName, a.Name)
			}
		case eventlog.KindAgentHeartbeat:
			if a, ok := r.agents[ev.AgentID]; ok && ev.Time.After(a.LastHeartbeat) {
				a.LastHeartbeat = ev.Time
				a.State = StateIdle
			}
		case eventlog.KindAgentStale:
			if a, ok := r.agents[ev.AgentID]; ok {
				a.State = StateStale
			}
		}
	}

	if n := len(r.agents); n > 0 {
		logging.Info("agent", "restored %d agents from event log", n)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func newAgentID(name string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", name, hex.EncodeToString(buf)), nil
}

// Register adds a new agent or, if name is already known, reuses its id
// and issues a fresh session (idempotent-on-name per the pinned open
// question: re-registration reuses the id rather than rotating it).
func (r *Registry) Register(name string, capabilities []string, codebaseID string, crossCodebaseCapable bool) (*Agent, *session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if existingID, ok := r.byName[name]; ok {
		a := r.agents[existingID]
		a.Capabilities = capabilities
		a.CodebaseID = codebaseID
		a.CrossCodebaseCapable = crossCodebaseCapable
		a.LastHeartbeat = now
		a.State = StateIdle

		sess, err := r.sessions.CreateSession(a.ID)
		if err != nil {
			return nil, nil, err
		}
		a.SessionToken = sess.Token

		r.appendEvent(eventlog.KindAgentRegistered, a.ID, registrationDetails(name, capabilities, codebaseID, crossCodebaseCapable, "true"))
		return a, sess, nil
	}

	id, err := newAgentID(name)
	if err != nil {
		return nil, nil, err
	}

	sess, err := r.sessions.CreateSession(id)
	if err != nil {
		return nil, nil, err
	}

	a := &Agent{
		ID:                   id,
		Name:                 name,
		Capabilities:         capabilities,
		CodebaseID:           codebaseID,
		CrossCodebaseCapable: crossCodebaseCapable,
		SessionToken:         sess.Token,
		LastHeartbeat:        now,
		State:                StateIdle,
		RegisteredAt:         now,
	}

	r.agents[id] = a
	r.byName[name] = id

	r.appendEvent(eventlog.KindAgentRegistered, id, registrationDetails(name, capabilities, codebaseID, crossCodebaseCapable, "false"))
	logging.Info("agent", "registered agent %s (%s)", id, name)
	return a, sess, nil
}

func registrationDetails(name string, capabilities []string, codebaseID string, crossCodebaseCapable bool, reused string) map[string]string {
	return map[string]string{
		"name":                   name,
		"capabilities":           strings.Join(capabilities, ","),
		"codebase_id":            codebaseID,
		"cross_codebase_capable": strconv.FormatBool(crossCodebaseCapable),
		"reused":                 reused,
	}
}

// Unregister removes agent agentID and revokes its session.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownAgent
	}

	r.sessions.Revoke(a.SessionToken)
	delete(r.agents, agentID)
	delete(r.byName, a.Name)

	r.appendEvent(eventlog.KindAgentUnregistered, agentID, nil)
	logging.Info("agent", "unregistered agent %s", agentID)
	return nil
}

// Heartbeat refreshes agentID's liveness timestamp. Idempotent;
// last_heartbeat is monotonically non-decreasing.
func (r *Registry) Heartbeat(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownAgent
	}

	now := time.Now()
	if now.After(a.LastHeartbeat) {
		a.LastHeartbeat = now
	}
	if a.State == StateStale {
		a.State = StateIdle
	}

	r.appendEvent(eventlog.KindAgentHeartbeat, agentID, nil)
	return nil
}

// MarkWorking/MarkIdle are called by the Task Registry when an agent's
// inbox gains or loses a current task.
func (r *Registry) MarkWorking(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[agentID]; ok && a.State != StateStale {
		a.State = StateWorking
	}
}

func (r *Registry) MarkIdle(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[agentID]; ok && a.State != StateStale {
		a.State = StateIdle
	}
}

// Get returns a copy of agentID's record.
func (r *Registry) Get(agentID string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// List returns a snapshot of every known agent.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out
}

// IsStale reports whether a is stale relative to now, matching the
// boundary rule: exactly at the threshold the agent is NOT yet stale.
func (a *Agent) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(a.LastHeartbeat) > threshold
}

func (r *Registry) staleTickLoop() {
	defer close(r.done)

	ticker := time.NewTicker(DefaultHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tickStale()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) tickStale() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.agents {
		if a.State == StateUnregistered {
			continue
		}
		if a.IsStale(now, r.staleThreshold) && a.State != StateStale {
			a.State = StateStale
			r.appendEvent(eventlog.KindAgentStale, id, nil)
			logging.Warn("agent", "agent %s marked stale (last heartbeat %s ago)", id, now.Sub(a.LastHeartbeat))
		}
	}
}

func (r *Registry) appendEvent(kind eventlog.Kind, agentID string, details map[string]string) {
	if r.log == nil {
		return
	}
	if _, err := r.log.Append("agents", eventlog.Event{Kind: kind, AgentID: agentID, Details: details}); err != nil {
		logging.Error("agent", err, "failed to append event %s for agent %s", kind, agentID)
	}
}
