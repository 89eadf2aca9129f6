package router

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
	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/internal/session"
	"mcpcoordinator/internal/task"
	"mcpcoordinator/internal/toolregistry"
)

type harness struct {
	router   *Router
	sessions *session.Manager
	agents   *agent.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := eventlog.NewBoltLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	sessions := session.NewManager(time.Hour)
	t.Cleanup(sessions.Stop)
	agents := agent.New(sessions, log)
	t.Cleanup(agents.Stop)
	codebases := codebase.New(log)
	inboxes := inbox.NewManager()
	tasks := task.New(agents, inboxes, codebases, log)

	sup := mcpserver.NewSupervisor(log)
	t.Cleanup(func() { _ = sup.Close() })

	native := toolregistry.NewNative(agents, tasks, codebases)
	reg := toolregistry.New(native, sup, log)

	rt := New(reg, sessions, agents, tasks, log, "test")
	return &harness{router: rt, sessions: sessions, agents: agents}
}

func (h *harness) registerAgent(t *testing.T) (agentID, token string) {
	t.Helper()
	a, sess, err := h.agents.Register("worker-1", []string{"go"}, "", false)
	require.NoError(t, err)
	return a.ID, sess.Token
}

func rawRequest(id int, method string, params interface{}) []byte {
	p, _ := json.Marshal(params)
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  json.RawMessage(p),
	}
	b, _ := json.Marshal(req)
	return b
}

func TestRouter_ToolsListIsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	resp := h.router.Handle(context.Background(), RequestContext{Security: ContextLocal}, rawRequest(1, "tools/list", nil))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
}

func TestRouter_ToolsCallWithoutSessionIsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	resp := h.router.Handle(context.Background(), RequestContext{Security: ContextRemote}, rawRequest(1, "tools/call", map[string]interface{}{
		"name": "list_codebases",
	}))
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeUnauthenticated, resp.Error.Code)
}

func TestRouter_ToolsCallDispatchesNativeTool(t *testing.T) {
	h := newHarness(t)
	_, token := h.registerAgent(t)

	resp := h.router.Handle(context.Background(), RequestContext{Security: ContextLocal, SessionToken: token}, rawRequest(2, "tools/call", map[string]interface{}{
		"name":      "list_codebases",
		"arguments": map[string]interface{}{},
	}))
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestRouter_UnknownToolIsMethodNotFound(t *testing.T) {
	h := newHarness(t)
	_, token := h.registerAgent(t)

	resp := h.router.Handle(context.Background(), RequestContext{Security: ContextLocal, SessionToken: token}, rawRequest(3, "tools/call", map[string]interface{}{
		"name": "nope",
	}))
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestRouter_MalformedJSONIsParseError(t *testing.T) {
	h := newHarness(t)
	resp := h.router.Handle(context.Background(), RequestContext{Security: ContextLocal}, []byte("{not json"))
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeParse, resp.Error.Code)
}

func TestRouter_NotificationsGetNoResponse(t *testing.T) {
	h := newHarness(t)
	raw, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "method": "notifications/initialized"})
	resp := h.router.Handle(context.Background(), RequestContext{Security: ContextLocal}, raw)
	require.Nil(t, resp)
}
