// Package router implements the Router / Unified MCP Server (C9): the
// single JSON-RPC 2.0 entry point every Transport Adapter funnels
// requests through. It authenticates, filters the tool catalog for the
// caller's security context, dispatches to native or backend handlers,
// maintains auto-generated tasks around backend calls, and maps every
// internal error to the JSON-RPC taxonomy.
//
// Grounded on the dispatch-table/line-oriented JSON-RPC server found in
// the retrieval pack's standalone MCP server (parse -> dispatch ->
// respond), adapted to add the coordinator's authentication and
// auto-task touch points around tools/call.
package router
