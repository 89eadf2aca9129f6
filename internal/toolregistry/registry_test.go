package toolregistry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/internal/toolfilter"
)

type stubNative struct {
	tools []ToolMeta
}

func (s *stubNative) GetTools() []ToolMeta { return s.tools }
func (s *stubNative) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	return TextResult("native:" + name), nil
}

type stubClient struct {
	tools []mcp.Tool
}

func (c *stubClient) Initialize(ctx context.Context) error { return nil }
func (c *stubClient) Close() error                         { return nil }
func (c *stubClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.tools, nil
}
func (c *stubClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("backend:" + name)}}, nil
}
func (c *stubClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (c *stubClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (c *stubClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return nil, nil }
func (c *stubClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (c *stubClient) Ping(ctx context.Context) error { return nil }

func newTestLog(t *testing.T) eventlog.Log {
	t.Helper()
	log, err := eventlog.NewBoltLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func waitReady(t *testing.T, sup *mcpserver.Supervisor, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := sup.Status(name)
		return ok && st.State == mcpserver.HealthReady
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_NativeToolsAlwaysResolve(t *testing.T) {
	log := newTestLog(t)
	native := &stubNative{tools: []ToolMeta{{Name: "register_agent"}}}
	sup := mcpserver.NewSupervisor(log)
	t.Cleanup(func() { _ = sup.Close() })

	reg := New(native, sup, log)

	isNative, backend, ok := reg.Resolve("register_agent")
	require.True(t, ok)
	require.True(t, isNative)
	require.Empty(t, backend)
}

func TestRegistry_MergesReadyBackendTools(t *testing.T) {
	log := newTestLog(t)
	native := &stubNative{}
	sup := mcpserver.NewSupervisorWithClientFactory(log, func(spec mcpserver.Spec) mcpserver.MCPClient {
		return &stubClient{tools: []mcp.Tool{{Name: "grep"}}}
	})
	t.Cleanup(func() { _ = sup.Close() })
	require.NoError(t, sup.AddBackend(mcpserver.Spec{Name: "fs", Command: "fs-server"}))
	waitReady(t, sup, "fs")

	reg := New(native, sup, log)
	reg.Refresh()

	isNative, backend, ok := reg.Resolve("grep")
	require.True(t, ok)
	require.False(t, isNative)
	require.Equal(t, "fs", backend)

	result, err := reg.Call(context.Background(), "grep", nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
}

func TestRegistry_NativeWinsOnCollision(t *testing.T) {
	log := newTestLog(t)
	native := &stubNative{tools: []ToolMeta{{Name: "heartbeat"}}}
	sup := mcpserver.NewSupervisorWithClientFactory(log, func(spec mcpserver.Spec) mcpserver.MCPClient {
		return &stubClient{tools: []mcp.Tool{{Name: "heartbeat"}}}
	})
	t.Cleanup(func() { _ = sup.Close() })
	require.NoError(t, sup.AddBackend(mcpserver.Spec{Name: "imposter", Command: "imposter-server"}))
	waitReady(t, sup, "imposter")

	reg := New(native, sup, log)
	reg.Refresh()

	isNative, _, ok := reg.Resolve("heartbeat")
	require.True(t, ok)
	require.True(t, isNative, "native tools must win on name collision")
}

func TestRegistry_ListFilteredHidesLocalOnlyBackendsFromRemote(t *testing.T) {
	log := newTestLog(t)
	native := &stubNative{tools: []ToolMeta{
		{Name: "list_codebases", RemoteSafe: true},
		{Name: "register_codebase", RemoteSafe: false, LocalOnlyParams: []string{"workspace_path"}},
	}}
	sup := mcpserver.NewSupervisorWithClientFactory(log, func(spec mcpserver.Spec) mcpserver.MCPClient {
		return &stubClient{tools: []mcp.Tool{{Name: "grep"}}}
	})
	t.Cleanup(func() { _ = sup.Close() })
	require.NoError(t, sup.AddBackend(mcpserver.Spec{Name: "fs", Command: "fs-server", RemoteSafe: false}))
	waitReady(t, sup, "fs")

	reg := New(native, sup, log)
	reg.Refresh()

	local := reg.ListFiltered(toolfilter.Policy{Context: toolfilter.ContextLocal})
	require.Len(t, local, 3)

	remote := reg.ListFiltered(toolfilter.Policy{Context: toolfilter.ContextRemote})
	require.Len(t, remote, 1)
	require.Equal(t, "list_codebases", remote[0].Name)
}

func TestRegistry_CallUnknownTool(t *testing.T) {
	log := newTestLog(t)
	sup := mcpserver.NewSupervisor(log)
	t.Cleanup(func() { _ = sup.Close() })
	reg := New(&stubNative{}, sup, log)

	_, err := reg.Call(context.Background(), "nope", nil)
	require.Error(t, err)
}
