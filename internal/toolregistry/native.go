package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mcpcoordinator/internal/agent"
	"mcpcoordinator/internal/codebase"
	"mcpcoordinator/internal/task"
)

// Native implements NativeHandler with the hard-coded coordination tools
// from spec §4.8: agent lifecycle, task assignment, and codebase
// bookkeeping, each backed by its own per-entity registry.
type Native struct {
	agents    *agent.Registry
	tasks     *task.Registry
	codebases *codebase.Registry
}

// NewNative wires the native tool set to its backing registries.
func NewNative(agents *agent.Registry, tasks *task.Registry, codebases *codebase.Registry) *Native {
	return &Native{agents: agents, tasks: tasks, codebases: codebases}
}

// GetTools returns the fixed native tool catalog.
func (n *Native) GetTools() []ToolMeta {
	return []ToolMeta{
		{
			Name:        "register_agent",
			Description: "Register a new agent session and receive a session token.",
			Parameters: []ParamMeta{
				{Name: "name", Type: "string", Required: true},
				{Name: "capabilities", Type: "array", Required: true},
				{Name: "codebase_id", Type: "string"},
				{Name: "cross_codebase_capable", Type: "boolean"},
			},
			RemoteSafe: true,
			Tags:       []string{"agent"},
		},
		{
			Name:        "unregister_agent",
			Description: "Unregister an agent and revoke its session.",
			Parameters: []ParamMeta{
				{Name: "agent_id", Type: "string", Required: true},
			},
			RemoteSafe: true,
			Tags:       []string{"agent"},
		},
		{
			Name:        "heartbeat",
			Description: "Refresh an agent's liveness timestamp.",
			Parameters: []ParamMeta{
				{Name: "agent_id", Type: "string", Required: true},
			},
			RemoteSafe: true,
			Tags:       []string{"agent"},
		},
		{
			Name:        "create_task",
			Description: "Create a task and attempt immediate assignment.",
			Parameters: []ParamMeta{
				{Name: "title", Type: "string", Required: true},
				{Name: "description", Type: "string"},
				{Name: "priority", Type: "string"},
				{Name: "required_capabilities", Type: "array"},
				{Name: "codebase_id", Type: "string"},
				{Name: "file_paths", Type: "array"},
			},
			RemoteSafe: true,
			Tags:       []string{"task"},
		},
		{
			Name:        "create_cross_codebase_task",
			Description: "Create a primary task plus dependent tasks across affected codebases.",
			Parameters: []ParamMeta{
				{Name: "title", Type: "string", Required: true},
				{Name: "description", Type: "string"},
				{Name: "primary_codebase_id", Type: "string", Required: true},
				{Name: "affected_codebases", Type: "array", Required: true},
				{Name: "strategy", Type: "string", Required: true},
				{Name: "required_capabilities", Type: "array"},
			},
			RemoteSafe: true,
			Tags:       []string{"task", "codebase"},
		},
		{
			Name:        "get_next_task",
			Description: "Promote the head of the agent's inbox to in-progress.",
			Parameters: []ParamMeta{
				{Name: "agent_id", Type: "string", Required: true},
			},
			RemoteSafe: true,
			Tags:       []string{"task"},
		},
		{
			Name:        "complete_task",
			Description: "Mark the agent's current task completed.",
			Parameters: []ParamMeta{
				{Name: "agent_id", Type: "string", Required: true},
				{Name: "result", Type: "string"},
			},
			RemoteSafe: true,
			Tags:       []string{"task"},
		},
		{
			Name:        "get_task_board",
			Description: "Return the live agent/task board snapshot.",
			Parameters:  nil,
			RemoteSafe:  true,
			Tags:        []string{"task", "agent"},
		},
		{
			Name:        "register_codebase",
			Description: "Register a codebase workspace.",
			Parameters: []ParamMeta{
				{Name: "id", Type: "string", Required: true},
				{Name: "name", Type: "string", Required: true},
				{Name: "workspace_path", Type: "string", Required: true},
				{Name: "description", Type: "string"},
			},
			RemoteSafe:      false,
			Tags:            []string{"codebase"},
			LocalOnlyParams: []string{"workspace_path"},
		},
		{
			Name:        "add_codebase_dependency",
			Description: "Record a dependency edge between two codebases.",
			Parameters: []ParamMeta{
				{Name: "source_codebase_id", Type: "string", Required: true},
				{Name: "target_codebase_id", Type: "string", Required: true},
				{Name: "dependency_type", Type: "string", Required: true},
			},
			RemoteSafe: true,
			Tags:       []string{"codebase"},
		},
		{
			Name:        "list_codebases",
			Description: "List all registered codebases.",
			Parameters:  nil,
			RemoteSafe:  true,
			Tags:        []string{"codebase"},
		},
		{
			Name:        "get_codebase_status",
			Description: "Return a single codebase's record and its dependents.",
			Parameters: []ParamMeta{
				{Name: "id", Type: "string", Required: true},
			},
			RemoteSafe: true,
			Tags:       []string{"codebase"},
		},
	}
}

// ExecuteTool dispatches name to its backing registry call.
func (n *Native) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	switch name {
	case "register_agent":
		return n.registerAgent(args)
	case "unregister_agent":
		return n.unregisterAgent(args)
	case "heartbeat":
		return n.heartbeat(args)
	case "create_task":
		return n.createTask(args)
	case "create_cross_codebase_task":
		return n.createCrossCodebaseTask(args)
	case "get_next_task":
		return n.getNextTask(args)
	case "complete_task":
		return n.completeTask(args)
	case "get_task_board":
		return n.getTaskBoard()
	case "register_codebase":
		return n.registerCodebase(args)
	case "add_codebase_dependency":
		return n.addCodebaseDependency(args)
	case "list_codebases":
		return n.listCodebases()
	case "get_codebase_status":
		return n.getCodebaseStatus(args)
	default:
		return nil, fmt.Errorf("unknown native tool: %s", name)
	}
}

func (n *Native) registerAgent(args map[string]interface{}) (*CallResult, error) {
	name, _ := stringArg(args, "name")
	caps := stringSliceArg(args, "capabilities")
	codebaseID, _ := stringArg(args, "codebase_id")
	crossCapable, _ := boolArg(args, "cross_codebase_capable")

	a, sess, err := n.agents.Register(name, caps, codebaseID, crossCapable)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"agent_id":      a.ID,
		"session_token": sess.Token,
		"expires_at":    sess.ExpiresAt.Format(time.RFC3339),
	})
}

func (n *Native) unregisterAgent(args map[string]interface{}) (*CallResult, error) {
	agentID, _ := stringArg(args, "agent_id")
	if err := n.agents.Unregister(agentID); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"ok": true})
}

func (n *Native) heartbeat(args map[string]interface{}) (*CallResult, error) {
	agentID, _ := stringArg(args, "agent_id")
	if err := n.agents.Heartbeat(agentID); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"ok": true, "server_time": time.Now().Format(time.RFC3339)})
}

func (n *Native) createTask(args map[string]interface{}) (*CallResult, error) {
	title, _ := stringArg(args, "title")
	description, _ := stringArg(args, "description")
	priority, _ := stringArg(args, "priority")
	codebaseID, _ := stringArg(args, "codebase_id")

	t, err := n.tasks.CreateTask(task.Spec{
		Title:                title,
		Description:          description,
		Priority:              task.Priority(priority),
		RequiredCapabilities: stringSliceArg(args, "required_capabilities"),
		CodebaseID:           codebaseID,
		FilePaths:            stringSliceArg(args, "file_paths"),
	})
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"task_id":     t.ID,
		"assigned_to": t.AssigneeID,
	})
}

func (n *Native) createCrossCodebaseTask(args map[string]interface{}) (*CallResult, error) {
	title, _ := stringArg(args, "title")
	description, _ := stringArg(args, "description")
	primary, _ := stringArg(args, "primary_codebase_id")
	strategy, _ := stringArg(args, "strategy")

	primaryTask, deps, err := n.tasks.CreateCrossCodebaseTask(task.CrossCodebaseSpec{
		Title:                title,
		Description:          description,
		PrimaryCodebaseID:    primary,
		AffectedCodebaseIDs:  stringSliceArg(args, "affected_codebases"),
		Strategy:             task.CrossCodebaseStrategy(strategy),
		RequiredCapabilities: stringSliceArg(args, "required_capabilities"),
	})
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	dependentIDs := make([]string, len(deps))
	for i, d := range deps {
		dependentIDs[i] = d.ID
	}
	return jsonResult(map[string]interface{}{
		"primary_task_id":    primaryTask.ID,
		"dependent_task_ids": dependentIDs,
	})
}

func (n *Native) getNextTask(args map[string]interface{}) (*CallResult, error) {
	agentID, _ := stringArg(args, "agent_id")
	t, err := n.tasks.GetNext(agentID)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	if t == nil {
		return jsonResult(map[string]interface{}{"task": nil})
	}
	return jsonResult(map[string]interface{}{"task": taskView(t)})
}

func (n *Native) completeTask(args map[string]interface{}) (*CallResult, error) {
	agentID, _ := stringArg(args, "agent_id")
	result, _ := stringArg(args, "result")
	if err := n.tasks.Complete(agentID, result); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"ok": true})
}

func (n *Native) getTaskBoard() (*CallResult, error) {
	return jsonResult(n.tasks.GetBoard())
}

func (n *Native) registerCodebase(args map[string]interface{}) (*CallResult, error) {
	id, _ := stringArg(args, "id")
	name, _ := stringArg(args, "name")
	workspacePath, _ := stringArg(args, "workspace_path")
	description, _ := stringArg(args, "description")

	if err := n.codebases.Register(id, name, workspacePath, description, stringMapArg(args, "metadata")); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"ok": true})
}

func (n *Native) addCodebaseDependency(args map[string]interface{}) (*CallResult, error) {
	src, _ := stringArg(args, "source_codebase_id")
	dst, _ := stringArg(args, "target_codebase_id")
	depType, _ := stringArg(args, "dependency_type")

	if err := n.codebases.AddDependency(src, dst, depType, stringMapArg(args, "metadata")); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"ok": true})
}

func (n *Native) listCodebases() (*CallResult, error) {
	return jsonResult(n.codebases.List())
}

func (n *Native) getCodebaseStatus(args map[string]interface{}) (*CallResult, error) {
	id, _ := stringArg(args, "id")
	cb, ok := n.codebases.Status(id)
	if !ok {
		return ErrorResult("unknown codebase"), nil
	}
	return jsonResult(map[string]interface{}{
		"codebase":   cb,
		"dependents": n.codebases.Dependents(id),
	})
}

func taskView(t *task.Task) map[string]interface{} {
	return map[string]interface{}{
		"id":                     t.ID,
		"title":                  t.Title,
		"description":            t.Description,
		"priority":               t.Priority,
		"state":                  t.State,
		"assignee_id":            t.AssigneeID,
		"codebase_id":            t.CodebaseID,
		"file_paths":             t.FilePaths,
		"auto_generated":         t.AutoGenerated,
		"source_tool_name":       t.SourceToolName,
		"created_at":             t.CreatedAt.Format(time.RFC3339),
	}
}

func jsonResult(v interface{}) (*CallResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return TextResult(string(b)), nil
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMapArg(args map[string]interface{}, key string) map[string]string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}
