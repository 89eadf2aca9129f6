// Package mcpserver is the External-Server Supervisor (C7). It spawns
// configured backend MCP servers as stdio child processes via
// github.com/mark3labs/mcp-go's client package, probes them with an
// initialize+tools/list round trip, and restarts dead backends with
// exponential backoff up to a per-backend attempt cap.
package mcpserver
