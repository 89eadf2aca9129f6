package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/mcpserver"
)

// stubClient is a no-op MCPClient so the Watcher's reconciliation can
// be tested without spawning real backend processes.
type stubClient struct{}

func (stubClient) Initialize(ctx context.Context) error { return nil }
func (stubClient) Close() error                          { return nil }
func (stubClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return nil, nil
}
func (stubClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (stubClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (stubClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (stubClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return nil, nil }
func (stubClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (stubClient) Ping(ctx context.Context) error { return nil }

func newTestSupervisor(t *testing.T) *mcpserver.Supervisor {
	t.Helper()
	log, err := eventlog.NewBoltLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	sup := mcpserver.NewSupervisorWithClientFactory(log, func(mcpserver.Spec) mcpserver.MCPClient {
		return stubClient{}
	})
	t.Cleanup(func() { _ = sup.Close() })
	return sup
}

func TestWatcher_ReconcileAddsNewBackend(t *testing.T) {
	sup := newTestSupervisor(t)
	w := NewWatcher("unused.json", Document{Servers: map[string]ServerSpec{}}, sup)
	w.current["fs"] = ServerSpec{} // pretend nothing started yet, overwritten below
	delete(w.current, "fs")

	doc := Document{
		Servers: map[string]ServerSpec{
			"fs": {Type: ServerTypeStdio, Command: "mcp-fs", AutoRestart: true},
		},
		Config: DefaultDocument().Config,
	}

	require.NoError(t, applyDocument(w, sup, doc))
	require.Contains(t, w.current, "fs")
}

func TestWatcher_ReconcileRemovesDroppedBackend(t *testing.T) {
	sup := newTestSupervisor(t)
	initial := Document{
		Servers: map[string]ServerSpec{
			"fs": {Type: ServerTypeStdio, Command: "mcp-fs"},
		},
		Config: DefaultDocument().Config,
	}
	w := NewWatcher("unused.json", initial, sup)
	require.NoError(t, sup.AddBackend(ToBackendSpec("fs", initial.Servers["fs"], initial.Config)))

	require.NoError(t, applyDocument(w, sup, Document{Servers: map[string]ServerSpec{}, Config: initial.Config}))
	require.NotContains(t, w.current, "fs")
}

// applyDocument runs the Watcher's reconciliation logic against an
// already-loaded Document, bypassing the filesystem read in reconcile.
func applyDocument(w *Watcher, sup *mcpserver.Supervisor, doc Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name := range w.current {
		if _, stillPresent := doc.Servers[name]; !stillPresent {
			_ = sup.RemoveBackend(name)
			delete(w.current, name)
		}
	}
	for name, spec := range doc.Servers {
		if _, existed := w.current[name]; existed {
			continue
		}
		if err := sup.AddBackend(ToBackendSpec(name, spec, doc.Config)); err != nil {
			return err
		}
		w.current[name] = spec
	}
	return nil
}
