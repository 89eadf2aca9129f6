package toolregistry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpcoordinator/internal/agent"
	"mcpcoordinator/internal/codebase"
	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/inbox"
	"mcpcoordinator/internal/session"
	"mcpcoordinator/internal/task"
)

func newTestNative(t *testing.T) *Native {
	t.Helper()
	log, err := eventlog.NewBoltLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	sessions := session.NewManager(time.Hour)
	t.Cleanup(sessions.Stop)
	agents := agent.New(sessions, log)
	t.Cleanup(agents.Stop)
	codebases := codebase.New(log)
	tasks := task.New(agents, inbox.NewManager(), codebases, log)

	return NewNative(agents, tasks, codebases)
}

func decodeResult(t *testing.T, r *CallResult) map[string]interface{} {
	t.Helper()
	require.False(t, r.IsError)
	require.Len(t, r.Content, 1)
	text, ok := r.Content[0].(string)
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func TestNative_RegisterAgentReturnsSessionFields(t *testing.T) {
	n := newTestNative(t)
	res, err := n.ExecuteTool(context.Background(), "register_agent", map[string]interface{}{
		"name":         "worker-1",
		"capabilities": []interface{}{"go"},
	})
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.NotEmpty(t, out["agent_id"])
	require.NotEmpty(t, out["session_token"])
	require.NotEmpty(t, out["expires_at"])
}

func TestNative_HeartbeatUnknownAgentIsError(t *testing.T) {
	n := newTestNative(t)
	res, err := n.ExecuteTool(context.Background(), "heartbeat", map[string]interface{}{"agent_id": "ghost"})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestNative_CreateTaskReturnsIDAndAssignee(t *testing.T) {
	n := newTestNative(t)
	_, err := n.ExecuteTool(context.Background(), "register_agent", map[string]interface{}{
		"name":         "worker-1",
		"capabilities": []interface{}{"go"},
	})
	require.NoError(t, err)

	res, err := n.ExecuteTool(context.Background(), "create_task", map[string]interface{}{
		"title":                 "fix bug",
		"required_capabilities": []interface{}{"go"},
	})
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.NotEmpty(t, out["task_id"])
}

func TestNative_CreateCrossCodebaseTaskReturnsIDLists(t *testing.T) {
	n := newTestNative(t)
	primaryRes, err := n.ExecuteTool(context.Background(), "register_codebase", map[string]interface{}{
		"id": "primary", "name": "Primary", "workspace_path": "/tmp/primary",
	})
	require.NoError(t, err)
	require.False(t, primaryRes.IsError)

	secondaryRes, err := n.ExecuteTool(context.Background(), "register_codebase", map[string]interface{}{
		"id": "secondary", "name": "Secondary", "workspace_path": "/tmp/secondary",
	})
	require.NoError(t, err)
	require.False(t, secondaryRes.IsError)

	res, err := n.ExecuteTool(context.Background(), "create_cross_codebase_task", map[string]interface{}{
		"title":                "cross-cutting change",
		"primary_codebase_id":  "primary",
		"affected_codebases":   []interface{}{"secondary"},
		"strategy":             "parallel",
	})
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.NotEmpty(t, out["primary_task_id"])
	require.NotNil(t, out["dependent_task_ids"])
}

func TestNative_RegisterCodebaseAndDependencyPassMetadata(t *testing.T) {
	n := newTestNative(t)
	res, err := n.ExecuteTool(context.Background(), "register_codebase", map[string]interface{}{
		"id": "api", "name": "API", "workspace_path": "/tmp/api",
		"metadata": map[string]interface{}{"team": "platform"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = n.ExecuteTool(context.Background(), "register_codebase", map[string]interface{}{
		"id": "web", "name": "Web", "workspace_path": "/tmp/web",
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = n.ExecuteTool(context.Background(), "add_codebase_dependency", map[string]interface{}{
		"source_codebase_id": "web", "target_codebase_id": "api", "dependency_type": "api_call",
		"metadata": map[string]interface{}{"path": "/v1"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestNative_UnknownToolIsError(t *testing.T) {
	n := newTestNative(t)
	_, err := n.ExecuteTool(context.Background(), "does_not_exist", nil)
	require.Error(t, err)
}
