package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mcpcoordinator/internal/agent"
	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/internal/session"
	"mcpcoordinator/internal/task"
	"mcpcoordinator/internal/toolfilter"
	"mcpcoordinator/internal/toolregistry"
)

// DefaultRequestTimeout bounds the end-to-end handling of one request
// (spec §4.9).
const DefaultRequestTimeout = 60 * time.Second

// ProtocolVersion is the date-stamped MCP protocol version this router
// advertises in initialize responses and the Mcp-Protocol-Version header.
const ProtocolVersion = "2025-06-18"

// ServerName is the name reported in the initialize result's serverInfo
// (next to the version given to New) and in the HTTP adapter's Server
// response header.
const ServerName = "AgentCoordinator"

// Router is the Unified MCP Server. One instance serves every
// transport.
type Router struct {
	registry *toolregistry.Registry
	sessions *session.Manager
	agents   *agent.Registry
	tasks    *task.Registry
	log      eventlog.Log
	version  string
}

// New creates a Router wired to the coordinator's core components.
func New(registry *toolregistry.Registry, sessions *session.Manager, agents *agent.Registry, tasks *task.Registry, log eventlog.Log, version string) *Router {
	return &Router{
		registry: registry,
		sessions: sessions,
		agents:   agents,
		tasks:    tasks,
		log:      log,
		version:  version,
	}
}

// Handle parses and dispatches a single JSON-RPC request. It returns
// nil for notifications, which receive no response.
func (rt *Router) Handle(ctx context.Context, rc RequestContext, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return rt.errorResponse(json.RawMessage("null"), ErrCodeParse, "parse error")
	}
	if req.Method == "" {
		return rt.errorResponse(req.ID, ErrCodeInvalidRequest, "missing method")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	return rt.dispatch(ctx, rc, &req)
}

// dispatch implements spec §4.9 step 1 (classify) and fans out to the
// per-method handler.
func (rt *Router) dispatch(ctx context.Context, rc RequestContext, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return rt.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		return rt.respond(req.ID, struct{}{})
	case "health":
		return rt.respond(req.ID, map[string]interface{}{"status": "ok"})
	case "tools/list":
		return rt.handleToolsList(rc, req)
	case "tools/call":
		return rt.handleToolsCall(ctx, rc, req)
	default:
		if req.isNotification() {
			return nil
		}
		return rt.errorResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (rt *Router) handleInitialize(req *Request) *Response {
	return rt.respond(req.ID, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		"serverInfo":      map[string]interface{}{"name": ServerName, "version": rt.version},
	})
}

// handleToolsList implements step 2: filter the catalog through the
// Tool Filter using the request's security context.
func (rt *Router) handleToolsList(rc RequestContext, req *Request) *Response {
	policy := toolfilter.Policy{Context: toolfilter.ContextLocal}
	if rc.Security == ContextRemote {
		policy.Context = toolfilter.ContextRemote
	}
	return rt.respond(req.ID, map[string]interface{}{"tools": rt.registry.ListFiltered(policy)})
}

// handleToolsCall implements steps 1 (auth), 3 (heartbeat pre-touch), 4
// (dispatch), 5 (auto-task pre-touch), and 6 (response post-touch).
func (rt *Router) handleToolsCall(ctx context.Context, rc RequestContext, req *Request) *Response {
	agentID, authenticated := rt.authenticate(rc)
	if !authenticated {
		return rt.errorResponse(req.ID, ErrCodeUnauthenticated, "unauthenticated")
	}

	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rt.errorResponse(req.ID, ErrCodeInvalidParams, "invalid params: "+err.Error())
	}
	var args map[string]interface{}
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return rt.errorResponse(req.ID, ErrCodeInvalidParams, "invalid arguments: "+err.Error())
		}
	}

	isNative, _, found := rt.registry.Resolve(params.Name)
	if !found {
		return rt.errorResponse(req.ID, ErrCodeMethodNotFound, "unknown tool: "+params.Name)
	}

	if err := rt.agents.Heartbeat(agentID); err != nil && !errors.Is(err, agent.ErrUnknownAgent) {
		rt.appendErrorEvent("heartbeat_pretouch_failed", agentID, err)
	}

	autoTask := false
	if !isNative {
		if _, err := rt.tasks.UpdateActivity(agentID, params.Name, args); err == nil {
			autoTask = true
		}
	}

	result, err := rt.registry.Call(ctx, params.Name, args)

	if autoTask {
		_ = rt.tasks.CompleteAuto(agentID, err == nil)
	}

	if err != nil {
		rt.appendErrorEvent("tool_call_failed", agentID, err)
		code, message := mapCallError(err)
		return rt.errorResponse(req.ID, code, message)
	}
	return rt.respond(req.ID, result)
}

// authenticate implements step 1's session check for authenticated
// methods. Unauthenticated methods never reach here.
func (rt *Router) authenticate(rc RequestContext) (agentID string, ok bool) {
	if rc.SessionToken == "" {
		return "", false
	}
	sess, valid := rt.sessions.Validate(rc.SessionToken)
	if !valid {
		return "", false
	}
	rt.sessions.Touch(rc.SessionToken)
	return sess.AgentID, true
}

// mapCallError maps a dispatch error to the §7 taxonomy. A backend
// timeout or a backend that is not ready becomes an application error
// with a fixed message, an unknown backend becomes method-not-found, and
// any other error becomes an application error carrying its text.
func mapCallError(err error) (int, string) {
	switch {
	case errors.Is(err, mcpserver.ErrBackendTimeout):
		return ErrCodeApplication, "backend_timeout"
	case errors.Is(err, mcpserver.ErrBackendNotReady):
		return ErrCodeApplication, "backend_dead"
	case errors.Is(err, mcpserver.ErrUnknownBackend):
		return ErrCodeMethodNotFound, "unknown tool"
	default:
		return ErrCodeApplication, err.Error()
	}
}

func (rt *Router) appendErrorEvent(reason, agentID string, err error) {
	if rt.log == nil {
		return
	}
	_, _ = rt.log.Append("router", eventlog.Event{
		Kind:    eventlog.KindRequestFailed,
		Time:    time.Now(),
		AgentID: agentID,
		Details: map[string]string{"reason": reason, "error": err.Error()},
	})
}

func (rt *Router) respond(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func (rt *Router) errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}
