// Package codebase implements the Codebase Registry (C5): known
// codebases, their workspace paths, and inter-codebase dependency edges.
//
// Edges are backed by internal/dependency.Graph, the authoritative
// structural store the
// Task Registry queries to resolve a task's codebase and enumerate
// affected codebases for cross-codebase tasks. The graph itself only
// knows node-to-node edges, so per-edge type and metadata stay on each
// Codebase's own Dependencies slice.
package codebase

import (
	"sync"

	"mcpcoordinator/internal/dependency"
	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/pkg/logging"
	strutil "mcpcoordinator/pkg/strings"
)

// maxDescriptionLen bounds a codebase's stored description so a
// misbehaving agent can't bloat the registry or the Event Log with it.
const maxDescriptionLen = 500

// Dependency is a directed edge from one codebase to another.
type Dependency struct {
	Target   string
	Type     string
	Metadata map[string]string
}

// Codebase is a registered workspace and its outgoing dependency edges.
// Cycles among edges are permitted; the scheduler ignores them (§4.5).
type Codebase struct {
	ID            string
	Name          string
	WorkspacePath string
	Description   string
	Metadata      map[string]string
	Dependencies  []Dependency
}

// Registry is the concurrency-safe store of all known codebases.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Codebase
	byWS  map[string]string // workspace path, as given -> id
	graph *dependency.Graph

	log eventlog.Log
}

// New creates an empty codebase Registry.
func New(log eventlog.Log) *Registry {
	return &Registry{
		byID:  make(map[string]*Codebase),
		byWS:  make(map[string]string),
		graph: dependency.New(),
		log:   log,
	}
}

// Register adds a new codebase. Workspace paths must be unique.
func (r *Registry) Register(id, name, workspacePath, description string, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byWS[workspacePath]; ok && existing != id {
		return ErrDuplicateWorkspace
	}

	cb := &Codebase{
		ID:            id,
		Name:          name,
		WorkspacePath: workspacePath,
		Description:   strutil.TruncateDescription(description, maxDescriptionLen),
		Metadata:      metadata,
	}

	r.byID[id] = cb
	r.byWS[workspacePath] = id
	r.graph.AddNode(dependency.Node{ID: dependency.NodeID(id), FriendlyName: name, Kind: dependency.KindMCP})

	r.appendEvent(eventlog.KindCodebaseRegistered, id, map[string]string{"name": name, "description": cb.Description, "workspace_path": workspacePath})
	logging.Info("codebase", "registered codebase %s (%s)", id, name)
	return nil
}

// AddDependency records a directed edge src -> dst in the backing
// dependency graph, and the edge's type/metadata alongside it.
func (r *Registry) AddDependency(src, dst, depType string, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[src]
	if !ok {
		return ErrUnknownCodebase
	}
	if _, ok := r.byID[dst]; !ok {
		return ErrUnknownCodebase
	}

	s.Dependencies = append(s.Dependencies, Dependency{Target: dst, Type: depType, Metadata: metadata})

	node := r.graph.Get(dependency.NodeID(src))
	node.DependsOn = append(node.DependsOn, dependency.NodeID(dst))
	r.graph.AddNode(*node)

	r.appendEvent(eventlog.KindDependencyAdded, "", map[string]string{"source": src, "target": dst, "type": depType})
	return nil
}

// Status returns a copy of id's record.
func (r *Registry) Status(id string) (Codebase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cb, ok := r.byID[id]
	if !ok {
		return Codebase{}, false
	}
	return *cb, true
}

// List returns a snapshot of every known codebase.
func (r *Registry) List() []Codebase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Codebase, 0, len(r.byID))
	for _, cb := range r.byID {
		out = append(out, *cb)
	}
	return out
}

// Dependents returns every codebase id with a direct dependency edge onto
// target, per the backing dependency graph.
func (r *Registry) Dependents(target string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.graph.Dependents(dependency.NodeID(target))
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Restore rebuilds the codebase table and its backing dependency graph
// from a replayed "codebases" stream. Must be called before the Registry
// starts serving requests.
func (r *Registry) Restore(events []eventlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case eventlog.KindCodebaseRegistered:
			id := ev.Details["codebase_id"]
			cb := &Codebase{
				ID:            id,
				Name:          ev.Details["name"],
				Description:   ev.Details["description"],
				WorkspacePath: ev.Details["workspace_path"],
			}
			r.byID[id] = cb
			if cb.WorkspacePath != "" {
				r.byWS[cb.WorkspacePath] = id
			}
			r.graph.AddNode(dependency.Node{ID: dependency.NodeID(id), FriendlyName: cb.Name, Kind: dependency.KindMCP})

		case eventlog.KindDependencyAdded:
			src, dst, depType := ev.Details["source"], ev.Details["target"], ev.Details["type"]
			s, ok := r.byID[src]
			if !ok {
				continue
			}
			s.Dependencies = append(s.Dependencies, Dependency{Target: dst, Type: depType})

			node := r.graph.Get(dependency.NodeID(src))
			if node != nil {
				node.DependsOn = append(node.DependsOn, dependency.NodeID(dst))
				r.graph.AddNode(*node)
			}
		}
	}

	if n := len(r.byID); n > 0 {
		logging.Info("codebase", "restored %d codebases from event log", n)
	}
}

func (r *Registry) appendEvent(kind eventlog.Kind, codebaseID string, details map[string]string) {
	if r.log == nil {
		return
	}
	if details == nil {
		details = map[string]string{}
	}
	if codebaseID != "" {
		details["codebase_id"] = codebaseID
	}
	if _, err := r.log.Append("codebases", eventlog.Event{Kind: kind, Details: details}); err != nil {
		logging.Error("codebase", err, "failed to append event %s", kind)
	}
}
