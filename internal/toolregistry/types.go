package toolregistry

import "context"

// ParamMeta describes one parameter of a native tool, enough to build an
// MCP JSON schema property from it.
type ParamMeta struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     interface{}
}

// ToolMeta describes one native tool's name, description, parameters,
// and the metadata the Tool Filter needs to decide remote visibility.
type ToolMeta struct {
	Name            string
	Description     string
	Parameters      []ParamMeta
	RemoteSafe      bool
	Tags            []string
	LocalOnlyParams []string
}

// CallResult is the native-handler result shape, converted to an MCP
// CallToolResult by Registry.Call.
type CallResult struct {
	Content []interface{}
	IsError bool
}

// TextResult builds a single-text-content success result.
func TextResult(text string) *CallResult {
	return &CallResult{Content: []interface{}{text}}
}

// ErrorResult builds a single-text-content error result.
func ErrorResult(text string) *CallResult {
	return &CallResult{Content: []interface{}{text}, IsError: true}
}

// NativeHandler is the coordination-tool provider: the hard-coded set of
// tools listed in spec §4.8 (register_agent, create_task, ...).
type NativeHandler interface {
	GetTools() []ToolMeta
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error)
}
