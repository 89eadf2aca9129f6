package eventlog

import "regexp"

// summaryTemplates renders a machine Kind plus its flat Details map into
// the human summary carried on every Event, in the style of a simple
// message-template engine. Placeholders of the form {{key}} are
// substituted from Details; {{agent_id}} resolves to the event's
// AgentID.
var summaryTemplates = map[Kind]string{
	KindAgentRegistered:    "agent {{agent_id}} ({{name}}) registered with capabilities [{{capabilities}}]",
	KindAgentUnregistered:  "agent {{agent_id}} unregistered",
	KindAgentHeartbeat:     "agent {{agent_id}} heartbeat",
	KindAgentStale:         "agent {{agent_id}} marked stale",
	KindSessionCreated:     "session created for agent {{agent_id}}",
	KindSessionRevoked:     "session revoked for agent {{agent_id}}",
	KindTaskCreated:        "task {{task_id}} created: {{title}}",
	KindTaskAssigned:       "task {{task_id}} assigned to agent {{agent_id}}",
	KindTaskStarted:        "task {{task_id}} started by agent {{agent_id}}",
	KindTaskCompleted:      "task {{task_id}} completed by agent {{agent_id}}",
	KindTaskFailed:         "task {{task_id}} failed on agent {{agent_id}}: {{note}}",
	KindTaskBlocked:        "task {{task_id}} blocked on a held file lock",
	KindFileLocked:         "agent {{agent_id}} locked paths [{{paths}}] for task {{task_id}}",
	KindFileUnlocked:       "agent {{agent_id}} released paths [{{paths}}] for task {{task_id}}",
	KindInboxEnqueued:      "task {{task_id}} enqueued to agent {{agent_id}}'s inbox",
	KindInboxTaken:         "agent {{agent_id}} took task {{task_id}} from its inbox",
	KindBackendReady:       "backend {{name}} is ready",
	KindBackendUnreachable: "backend {{name}} became unreachable: {{error}}",
	KindBackendRestarted:   "backend {{name}} restarted (attempt {{attempt}})",
	KindBackendDead:        "backend {{name}} exhausted its restart budget and is dead",
	KindBackendExhausted:   "backend {{name}} exhausted max restart attempts",
	KindCodebaseRegistered: "codebase {{codebase_id}} ({{name}}) registered",
	KindDependencyAdded:    "codebase {{source}} now depends on {{target}} ({{type}})",
	KindExternalServerUp:   "external server {{name}} came up",
	KindExternalServerDown: "external server {{name}} went down",
	KindRequestFailed:      "request failed: {{error}}",
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// renderSummary expands ev's template against its Details and AgentID.
// An unknown Kind falls back to the raw kind string.
func renderSummary(ev Event) string {
	tmpl, ok := summaryTemplates[ev.Kind]
	if !ok {
		return string(ev.Kind)
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		key := token[2 : len(token)-2]
		if key == "agent_id" {
			return ev.AgentID
		}
		if v, ok := ev.Details[key]; ok {
			return v
		}
		return ""
	})
}
