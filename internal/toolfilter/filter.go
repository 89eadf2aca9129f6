package toolfilter

import (
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
)

// Apply reduces tools to what policy permits. It is pure: the same
// (policy, tools, descriptors) always produces the same result, and
// nothing here mutates its inputs.
//
// Local context returns the full catalog unfiltered. Remote context
// strips any tool that isn't explicitly marked remote-safe, that
// matches a deny pattern or deny tag, that fails an allow pattern when
// one is configured, or whose schema references a local-only
// parameter (e.g. an absolute host path).
func Apply(policy Policy, tools []mcp.Tool, descriptors map[string]Descriptor) []mcp.Tool {
	if policy.Context == ContextLocal {
		return tools
	}

	out := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		if allowed(policy, tool.Name, descriptors[tool.Name]) {
			out = append(out, tool)
		}
	}
	return out
}

func allowed(policy Policy, name string, d Descriptor) bool {
	if !d.RemoteSafe {
		return false
	}
	if matchesAny(name, policy.DenyPatterns) {
		return false
	}
	if len(policy.AllowPatterns) > 0 && !matchesAny(name, policy.AllowPatterns) {
		return false
	}
	if hasAny(d.Tags, policy.DenyTags) {
		return false
	}
	if len(d.LocalOnlyParams) > 0 {
		return false
	}
	return true
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func hasAny(tags, deny []string) bool {
	for _, t := range tags {
		for _, d := range deny {
			if t == d {
				return true
			}
		}
	}
	return false
}
