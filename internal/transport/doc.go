// Package transport implements the Transport Adapters (C11): stdio,
// HTTP, and WebSocket front ends that all funnel into the same Router.
// Each adapter is responsible only for framing and security-context
// tagging; request semantics live entirely in internal/router.
//
// The stdio adapter is grounded on the retrieval pack's line-delimited
// JSON-RPC stdio server (scan stdin, dispatch, write one response line).
// The HTTP adapter is grounded on the pack's gin+gin-contrib/cors
// wiring; the WebSocket adapter on the pack's gorilla/websocket hub.
package transport
