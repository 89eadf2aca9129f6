// Package toolfilter implements the Tool Filter (C10): a pure, stateless
// reduction of a tool catalog down to what a given request context is
// allowed to see. Local context sees everything; remote context sees
// only tools explicitly marked remote-safe and not excluded by the
// request's allow/deny patterns or tags.
package toolfilter

