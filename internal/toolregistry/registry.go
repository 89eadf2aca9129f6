// Package toolregistry implements the Tool Registry (C8): it merges the
// native coordination-tool catalog with every ready backend's tools into
// a single name -> {native, backend} lookup table, refreshed whenever a
// backend transitions to ready or dead.
//
// Built on an aggregator.ServerRegistry-style map+RWMutex+update channel
// but dropping its NameTracker smart-prefixing in favor of direct name
// lookup with no hard-coded prefix assumption and first-registered-wins
// collision handling, not server-prefixed renaming.
package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/internal/toolfilter"
	"mcpcoordinator/pkg/logging"
)

// sourceKind distinguishes a catalog entry's origin.
type sourceKind int

const (
	sourceNative sourceKind = iota
	sourceBackend
)

type entry struct {
	tool       mcp.Tool
	source     sourceKind
	backend    string // empty for native
	descriptor toolfilter.Descriptor
}

// Registry is the merged native+backend tool catalog.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry

	native     NativeHandler
	supervisor *mcpserver.Supervisor
	log        eventlog.Log
}

// New creates a Registry wired to the native tool set and the backend
// Supervisor. Call Refresh after construction and again on every
// backend ready/dead transition.
func New(native NativeHandler, supervisor *mcpserver.Supervisor, log eventlog.Log) *Registry {
	r := &Registry{
		entries:    make(map[string]entry),
		native:     native,
		supervisor: supervisor,
		log:        log,
	}
	r.Refresh()
	return r
}

// Refresh rebuilds the merged catalog. Native tools are registered
// first and always win; among backends, names are merged in sorted
// backend-name order so collisions resolve deterministically, with a
// warning event on every collision.
func (r *Registry) Refresh() {
	next := make(map[string]entry)

	for _, meta := range r.native.GetTools() {
		next[meta.Name] = entry{
			tool:   toMCPTool(meta),
			source: sourceNative,
			descriptor: toolfilter.Descriptor{
				RemoteSafe:      meta.RemoteSafe,
				Tags:            meta.Tags,
				LocalOnlyParams: meta.LocalOnlyParams,
			},
		}
	}

	statuses := r.supervisor.ListStatuses()
	remoteSafe := make(map[string]bool, len(statuses))
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if st.State == mcpserver.HealthReady {
			names = append(names, st.Name)
			remoteSafe[st.Name] = st.RemoteSafe
		}
	}
	sort.Strings(names)

	for _, name := range names {
		tools, ok := r.supervisor.Tools(name)
		if !ok {
			continue
		}
		for _, tool := range tools {
			if existing, exists := next[tool.Name]; exists {
				logging.Warn("toolregistry", "tool name collision for %s: %s already registered by %s, keeping it",
					tool.Name, tool.Name, sourceLabel(existing))
				r.appendCollisionEvent(tool.Name, existing, name)
				continue
			}
			next[tool.Name] = entry{
				tool:       tool,
				source:     sourceBackend,
				backend:    name,
				descriptor: toolfilter.Descriptor{RemoteSafe: remoteSafe[name]},
			}
		}
	}

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
}

func sourceLabel(e entry) string {
	if e.source == sourceNative {
		return "native"
	}
	return e.backend
}

func (r *Registry) appendCollisionEvent(toolName string, existing entry, losingBackend string) {
	if r.log == nil {
		return
	}
	_, _ = r.log.Append("backends", eventlog.Event{
		Kind: eventlog.KindBackendReady,
		Time: time.Now(),
		Details: map[string]string{
			"warning": "tool_name_collision",
			"tool":    toolName,
			"kept_by": sourceLabel(existing),
			"lost_by": losingBackend,
		},
	})
}

// List returns the merged tool catalog, unfiltered.
func (r *Registry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.tool)
	}
	return out
}

// ListFiltered returns the merged catalog reduced by policy, per the
// Tool Filter (C10).
func (r *Registry) ListFiltered(policy toolfilter.Policy) []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.entries))
	descriptors := make(map[string]toolfilter.Descriptor, len(r.entries))
	for name, e := range r.entries {
		tools = append(tools, e.tool)
		descriptors[name] = e.descriptor
	}
	return toolfilter.Apply(policy, tools, descriptors)
}

// Resolve returns whether name is native or backend-owned, and if the
// latter, which backend.
func (r *Registry) Resolve(name string) (isNative bool, backendName string, ok bool) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()
	if !exists {
		return false, "", false
	}
	return e.source == sourceNative, e.backend, true
}

// Call dispatches name to its native handler or to the Supervisor for
// the owning backend.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	isNative, backendName, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	if isNative {
		res, err := r.native.ExecuteTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return toMCPResult(res), nil
	}

	return r.supervisor.CallTool(ctx, backendName, name, args)
}

func toMCPTool(meta ToolMeta) mcp.Tool {
	properties := make(map[string]interface{}, len(meta.Parameters))
	required := make([]string, 0)
	for _, p := range meta.Parameters {
		prop := map[string]interface{}{"type": p.Type, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return mcp.Tool{
		Name:        meta.Name,
		Description: meta.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

func toMCPResult(res *CallResult) *mcp.CallToolResult {
	content := make([]mcp.Content, len(res.Content))
	for i, c := range res.Content {
		if text, ok := c.(string); ok {
			content[i] = mcp.NewTextContent(text)
		} else {
			content[i] = mcp.NewTextContent(fmt.Sprintf("%v", c))
		}
	}
	return &mcp.CallToolResult{Content: content, IsError: res.IsError}
}
