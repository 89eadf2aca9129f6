// Package eventlog implements the durable, append-only Event Log capability
// shared by every other component: append, subscribe, and replay_from(seq).
//
// Two implementations satisfy the Log interface. NATSLog uses NATS
// JetStream, one stream per domain concern (agents, tasks, codebases,
// backends, router), for deployments with a NATS endpoint configured. BoltLog falls back to a single bbolt file for local and
// development use when no NATS endpoint is available; it keeps the same
// per-stream sequence semantics so callers (and tests) are implementation
// agnostic.
package eventlog
