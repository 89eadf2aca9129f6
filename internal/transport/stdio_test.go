package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpcoordinator/internal/agent"
	"mcpcoordinator/internal/codebase"
	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/inbox"
	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/internal/router"
	"mcpcoordinator/internal/session"
	"mcpcoordinator/internal/task"
	"mcpcoordinator/internal/toolregistry"
)

func newTestRouter(t *testing.T) *router.Router {
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

	sup := mcpserver.NewSupervisor(log)
	t.Cleanup(func() { _ = sup.Close() })

	native := toolregistry.NewNative(agents, tasks, codebases)
	reg := toolregistry.New(native, sup, log)

	return router.New(reg, sessions, agents, tasks, log, "test")
}

func TestStdioAdapter_EchoesToolsListResponse(t *testing.T) {
	rt := newTestRouter(t)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var out bytes.Buffer

	a := &StdioAdapter{router: rt, reader: in, writer: &out}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, a.Serve(ctx))

	var resp router.Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Nil(t, resp.Error)
}

func TestStdioAdapter_SkipsBlankLines(t *testing.T) {
	rt := newTestRouter(t)

	in := strings.NewReader("\n" + `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n\n")
	var out bytes.Buffer

	a := &StdioAdapter{router: rt, reader: in, writer: &out}
	require.NoError(t, a.Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
}
