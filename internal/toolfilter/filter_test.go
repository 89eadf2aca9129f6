package toolfilter

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestApply_LocalContextReturnsFullCatalog(t *testing.T) {
	tools := []mcp.Tool{{Name: "register_codebase"}, {Name: "grep"}}
	out := Apply(Policy{Context: ContextLocal}, tools, nil)
	require.Len(t, out, 2)
}

func TestApply_RemoteContextStripsUnsafeTools(t *testing.T) {
	tools := []mcp.Tool{{Name: "register_codebase"}, {Name: "list_codebases"}}
	descriptors := map[string]Descriptor{
		"register_codebase": {RemoteSafe: false, LocalOnlyParams: []string{"workspace_path"}},
		"list_codebases":    {RemoteSafe: true},
	}
	out := Apply(Policy{Context: ContextRemote}, tools, descriptors)
	require.Len(t, out, 1)
	require.Equal(t, "list_codebases", out[0].Name)
}

func TestApply_DenyPatternWins(t *testing.T) {
	tools := []mcp.Tool{{Name: "write_file"}, {Name: "list_codebases"}}
	descriptors := map[string]Descriptor{
		"write_file":     {RemoteSafe: true},
		"list_codebases": {RemoteSafe: true},
	}
	out := Apply(Policy{Context: ContextRemote, DenyPatterns: []string{"write_*"}}, tools, descriptors)
	require.Len(t, out, 1)
	require.Equal(t, "list_codebases", out[0].Name)
}

func TestApply_AllowPatternNarrowsCatalog(t *testing.T) {
	tools := []mcp.Tool{{Name: "create_task"}, {Name: "list_codebases"}}
	descriptors := map[string]Descriptor{
		"create_task":     {RemoteSafe: true, Tags: []string{"task"}},
		"list_codebases":  {RemoteSafe: true, Tags: []string{"codebase"}},
	}
	out := Apply(Policy{Context: ContextRemote, AllowPatterns: []string{"*_task"}}, tools, descriptors)
	require.Len(t, out, 1)
	require.Equal(t, "create_task", out[0].Name)
}

func TestApply_DenyTagStripsMatchingTools(t *testing.T) {
	tools := []mcp.Tool{{Name: "add_codebase_dependency"}, {Name: "create_task"}}
	descriptors := map[string]Descriptor{
		"add_codebase_dependency": {RemoteSafe: true, Tags: []string{"codebase"}},
		"create_task":             {RemoteSafe: true, Tags: []string{"task"}},
	}
	out := Apply(Policy{Context: ContextRemote, DenyTags: []string{"codebase"}}, tools, descriptors)
	require.Len(t, out, 1)
	require.Equal(t, "create_task", out[0].Name)
}

func TestApply_UnknownToolDefaultsToNotRemoteSafe(t *testing.T) {
	tools := []mcp.Tool{{Name: "mystery"}}
	out := Apply(Policy{Context: ContextRemote}, tools, nil)
	require.Empty(t, out)
}
