// Package task implements the Task Registry (C6): the authoritative task
// store, deterministic assignment algorithm, file-lock arbitration, and
// the task board.
//
// The registry itself is the single owning actor for both the task table
// and the global file-lock table, following the same pattern of one
// mutex-guarded owner per piece of shared state seen in
// aggregator.ServerRegistry and aggregator.SessionRegistry, rather than
// scattering locks per field.
package task

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"mcpcoordinator/internal/agent"
	"mcpcoordinator/internal/codebase"
	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/inbox"
	"mcpcoordinator/pkg/logging"
)

// Priority mirrors inbox.Priority's ordering but is expressed in the
// task's own vocabulary at the API boundary.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) toInboxPriority() inbox.Priority {
	switch p {
	case PriorityUrgent:
		return inbox.PriorityUrgent
	case PriorityHigh:
		return inbox.PriorityHigh
	case PriorityLow:
		return inbox.PriorityLow
	default:
		return inbox.PriorityNormal
	}
}

// State is a task's position in the state machine (§4.6).
type State string

const (
	StatePending    State = "pending"
	StateAssigned   State = "assigned"
	StateInProgress State = "in_progress"
	StateBlocked    State = "blocked"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Task is a single unit of work tracked by the registry.
type Task struct {
	ID                   string
	Title                string
	Description          string
	Priority             Priority
	RequiredCapabilities []string
	CodebaseID           string
	FilePaths            []string
	State                State
	AssigneeID           string
	CreatedAt            time.Time
	AssignedAt           time.Time
	StartedAt            time.Time
	CompletedAt          time.Time
	AutoGenerated        bool
	SourceToolName       string
}

// Spec describes a task to be created via CreateTask.
type Spec struct {
	Title                string
	Description          string
	Priority             Priority
	RequiredCapabilities []string
	CodebaseID           string
	FilePaths            []string
}

// CrossCodebaseStrategy selects how sibling tasks become eligible.
type CrossCodebaseStrategy string

const (
	StrategySequential CrossCodebaseStrategy = "sequential"
	StrategyParallel   CrossCodebaseStrategy = "parallel"
)

// CrossCodebaseSpec describes a primary task plus its affected-codebase
// siblings.
type CrossCodebaseSpec struct {
	Title               string
	Description         string
	PrimaryCodebaseID   string
	AffectedCodebaseIDs []string
	Strategy            CrossCodebaseStrategy
	RequiredCapabilities []string
}

// caseInsensitiveFS reports whether the deployment's filesystem treats
// paths case-insensitively, matching the original tool's canonicalization
// rule: lowercase only on Windows/macOS, preserve case on Linux.
func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

func canonicalPath(p string) string {
	cleaned := filepath.Clean(filepath.ToSlash(p))
	if caseInsensitiveFS() {
		return strings.ToLower(cleaned)
	}
	return cleaned
}

// lockTable is the global file-lock table, owned exclusively by Registry.
type lockTable struct {
	holders map[string]string // canonical path -> task id
}

func newLockTable() *lockTable {
	return &lockTable{holders: make(map[string]string)}
}

func (lt *lockTable) conflicts(paths []string, taskID string) bool {
	for _, p := range paths {
		if holder, ok := lt.holders[canonicalPath(p)]; ok && holder != taskID {
			return true
		}
	}
	return false
}

func (lt *lockTable) acquire(paths []string, taskID string) {
	for _, p := range paths {
		lt.holders[canonicalPath(p)] = taskID
	}
}

func (lt *lockTable) release(paths []string, taskID string) {
	for _, p := range paths {
		if lt.holders[canonicalPath(p)] == taskID {
			delete(lt.holders, canonicalPath(p))
		}
	}
}

// Registry is the single authoritative task store.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
	locks *lockTable

	// crossCodebaseGroups maps a primary task id to its pending dependent
	// task ids and strategy, used to release sequential dependents once
	// the primary reaches in_progress.
	crossCodebaseGroups map[string]*crossCodebaseGroup

	boardRetention int
	completedOrder []string // ring of terminal task ids, most recent last

	agents    *agent.Registry
	inboxes   *inbox.Manager
	codebases *codebase.Registry
	log       eventlog.Log

	idleThreshold time.Duration
}

type crossCodebaseGroup struct {
	strategy   CrossCodebaseStrategy
	dependents []string
	released   bool
}

// DefaultBoardRetention bounds the in-memory ring of the most recent N
// terminal task ids (completedOrder), kept across all codebases; the full
// history remains in the Event Log. GetBoard does not read this ring: it
// reports per-agent completed/failed counts and the pending tasks.
const DefaultBoardRetention = 200

// DefaultIdleThreshold selects which online agents are "idle" for
// tie-break purposes in the assignment algorithm.
const DefaultIdleThreshold = 30 * time.Second

// New creates a Task Registry wired to the given Agent Registry, Inbox
// Manager, and Codebase Registry.
func New(agents *agent.Registry, inboxes *inbox.Manager, codebases *codebase.Registry, log eventlog.Log) *Registry {
	return &Registry{
		tasks:               make(map[string]*Task),
		locks:               newLockTable(),
		crossCodebaseGroups: make(map[string]*crossCodebaseGroup),
		boardRetention:      DefaultBoardRetention,
		agents:              agents,
		inboxes:             inboxes,
		codebases:           codebases,
		log:                 log,
		idleThreshold:       DefaultIdleThreshold,
	}
}

func newTaskID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "task-" + hex.EncodeToString(buf)
}

// Restore rebuilds the task table, file-lock table, and cross-codebase
// release groups from a replayed "tasks" stream. Must be called before the
// Registry starts serving requests; it does not re-enqueue anything into
// inbox.Manager, which restores its own queues independently.
func (r *Registry) Restore(events []eventlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		taskID := ev.Details["task_id"]

		switch ev.Kind {
		case eventlog.KindTaskCreated:
			t := &Task{
				ID:                   taskID,
				Title:                ev.Details["title"],
				Description:          ev.Details["description"],
				Priority:             Priority(ev.Details["priority"]),
				RequiredCapabilities: splitNonEmpty(ev.Details["required_capabilities"]),
				CodebaseID:           ev.Details["codebase_id"],
				FilePaths:            splitNonEmpty(ev.Details["file_paths"]),
				State:                StatePending,
				CreatedAt:            ev.Time,
				AutoGenerated:        ev.Details["auto_generated"] == "true",
				SourceToolName:       ev.Details["source_tool_name"],
			}
			r.tasks[t.ID] = t

			if primaryID, ok := ev.Details["primary_task_id"]; ok && primaryID != "" {
				group, ok := r.crossCodebaseGroups[primaryID]
				if !ok {
					group = &crossCodebaseGroup{strategy: CrossCodebaseStrategy(ev.Details["strategy"])}
					r.crossCodebaseGroups[primaryID] = group
				}
				group.dependents = append(group.dependents, t.ID)
			}

		case eventlog.KindTaskAssigned:
			t, ok := r.tasks[taskID]
			if !ok {
				continue
			}
			if ev.Details["auto_generated"] == "true" {
				t.State = StateInProgress
				t.AssigneeID = ev.AgentID
				t.StartedAt = ev.Time
			} else {
				t.State = StateAssigned
				t.AssigneeID = ev.AgentID
				t.AssignedAt = ev.Time
			}

		case eventlog.KindTaskStarted:
			if t, ok := r.tasks[taskID]; ok {
				t.State = StateInProgress
				t.AssigneeID = ev.AgentID
				t.StartedAt = ev.Time
			}

		case eventlog.KindTaskBlocked:
			if t, ok := r.tasks[taskID]; ok {
				t.State = StateBlocked
			}

		case eventlog.KindFileLocked:
			if t, ok := r.tasks[taskID]; ok {
				r.locks.acquire(t.FilePaths, t.ID)
			}

		case eventlog.KindFileUnlocked:
			if t, ok := r.tasks[taskID]; ok {
				r.locks.release(t.FilePaths, t.ID)
			}

		case eventlog.KindTaskCompleted:
			if t, ok := r.tasks[taskID]; ok {
				t.State = StateCompleted
				t.CompletedAt = ev.Time
				r.recordTerminalLocked(t.ID)
			}

		case eventlog.KindTaskFailed:
			if t, ok := r.tasks[taskID]; ok {
				t.State = StateFailed
				t.CompletedAt = ev.Time
				r.recordTerminalLocked(t.ID)
			}
		}
	}

	for primaryID, group := range r.crossCodebaseGroups {
		primary, ok := r.tasks[primaryID]
		if !ok {
			continue
		}
		if primary.State == StateInProgress || primary.State == StateCompleted || primary.State == StateFailed {
			group.released = true
		}
	}

	if n := len(r.tasks); n > 0 {
		logging.Info("task", "restored %d tasks from event log", n)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// CreateTask creates a new task from spec and attempts immediate
// assignment. Always produces a new id, even for a spec identical to a
// prior call (§8 round-trip: distinct ids, not deduplicated).
func (r *Registry) CreateTask(spec Spec) (*Task, error) {
	if spec.Priority == "" {
		spec.Priority = PriorityNormal
	}

	t := &Task{
		ID:                   newTaskID(),
		Title:                spec.Title,
		Description:          spec.Description,
		Priority:             spec.Priority,
		RequiredCapabilities: spec.RequiredCapabilities,
		CodebaseID:           spec.CodebaseID,
		FilePaths:            spec.FilePaths,
		State:                StatePending,
		CreatedAt:            time.Now(),
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	r.appendEvent(eventlog.KindTaskCreated, t.ID, "", taskCreationDetails(t))
	r.tryAssign(t)

	return t, nil
}

// taskCreationDetails captures enough of t's fields in an event's flat
// Details map to fully reconstruct it on replay.
func taskCreationDetails(t *Task) map[string]string {
	return map[string]string{
		"title":                 t.Title,
		"description":           t.Description,
		"priority":              string(t.Priority),
		"required_capabilities": strings.Join(t.RequiredCapabilities, ","),
		"codebase_id":           t.CodebaseID,
		"file_paths":            strings.Join(t.FilePaths, ","),
		"auto_generated":        strconv.FormatBool(t.AutoGenerated),
		"source_tool_name":      t.SourceToolName,
	}
}

// CreateCrossCodebaseTask creates a primary task plus one dependent
// sibling per affected codebase (§3 Cross-codebase task).
func (r *Registry) CreateCrossCodebaseTask(spec CrossCodebaseSpec) (*Task, []*Task, error) {
	primary, err := r.CreateTask(Spec{
		Title:                spec.Title,
		Description:          spec.Description,
		CodebaseID:           spec.PrimaryCodebaseID,
		RequiredCapabilities: spec.RequiredCapabilities,
	})
	if err != nil {
		return nil, nil, err
	}

	var dependents []*Task
	for _, cbID := range spec.AffectedCodebaseIDs {
		if cbID == spec.PrimaryCodebaseID {
			continue
		}

		dep := &Task{
			ID:                   newTaskID(),
			Title:                spec.Title,
			Description:          spec.Description,
			Priority:             PriorityNormal,
			RequiredCapabilities: spec.RequiredCapabilities,
			CodebaseID:           cbID,
			State:                StatePending,
			CreatedAt:            time.Now(),
		}

		r.mu.Lock()
		r.tasks[dep.ID] = dep
		r.mu.Unlock()

		depDetails := taskCreationDetails(dep)
		depDetails["primary_task_id"] = primary.ID
		depDetails["strategy"] = string(spec.Strategy)
		r.appendEvent(eventlog.KindTaskCreated, dep.ID, "", depDetails)
		dependents = append(dependents, dep)
	}

	depIDs := make([]string, len(dependents))
	for i, d := range dependents {
		depIDs[i] = d.ID
	}

	if spec.Strategy == StrategyParallel {
		for _, d := range dependents {
			r.tryAssign(d)
		}
	} else {
		r.mu.Lock()
		r.crossCodebaseGroups[primary.ID] = &crossCodebaseGroup{strategy: spec.Strategy, dependents: depIDs}
		r.mu.Unlock()
	}

	return primary, dependents, nil
}

// candidates returns every agent eligible for t, per §4.6.
func (r *Registry) candidates(t *Task) []agent.Agent {
	now := time.Now()
	var out []agent.Agent

	for _, a := range r.agents.List() {
		if a.State == agent.StateStale || a.State == agent.StateUnregistered {
			continue
		}
		if !a.HasCapabilities(t.RequiredCapabilities) {
			continue
		}
		if r.inboxes.For(a.ID).Current() != "" {
			continue
		}
		if t.CodebaseID != "" && a.CodebaseID != t.CodebaseID && !a.CrossCodebaseCapable {
			continue
		}
		_ = now
		out = append(out, a)
	}
	return out
}

func stableHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// selectAssignee applies the tie-break order from §4.6.
func (r *Registry) selectAssignee(t *Task) (string, bool) {
	cands := r.candidates(t)
	if len(cands) == 0 {
		return "", false
	}

	now := time.Now()
	pendingCount := func(a agent.Agent) int {
		return len(r.inboxes.For(a.ID).ListPending())
	}
	isIdle := func(a agent.Agent) bool {
		return now.Sub(a.LastHeartbeat) > r.idleThreshold
	}

	sort.SliceStable(cands, func(i, j int) bool {
		pi, pj := pendingCount(cands[i]), pendingCount(cands[j])
		if pi != pj {
			return pi < pj
		}
		ii, ij := isIdle(cands[i]), isIdle(cands[j])
		if ii != ij {
			return ii
		}
		return stableHash(cands[i].ID) < stableHash(cands[j].ID)
	})

	return cands[0].ID, true
}

// tryAssign attempts to move t from pending to assigned by enqueueing it
// into a chosen agent's inbox. If no candidate exists, t stays pending.
func (r *Registry) tryAssign(t *Task) {
	r.mu.Lock()
	if t.State != StatePending {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	assigneeID, ok := r.selectAssignee(t)
	if !ok {
		return
	}

	if err := r.inboxes.For(assigneeID).Enqueue(t.ID, t.Priority.toInboxPriority()); err != nil {
		logging.Warn("task", "could not enqueue task %s to agent %s: %v", t.ID, assigneeID, err)
		return
	}

	r.mu.Lock()
	t.State = StateAssigned
	t.AssigneeID = assigneeID
	t.AssignedAt = time.Now()
	r.mu.Unlock()

	r.appendEvent(eventlog.KindTaskAssigned, t.ID, assigneeID, nil)
}

// GetNext promotes agentID's inbox head (if any) to in_progress, applying
// file-lock arbitration. If the head task's locks conflict, it is marked
// blocked and GetNext returns nil without error.
func (r *Registry) GetNext(agentID string) (*Task, error) {
	ib := r.inboxes.For(agentID)

	taskID, err := ib.TakeNext()
	if err != nil {
		if err == inbox.ErrEmpty {
			return nil, nil
		}
		return nil, err
	}

	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownTask
	}

	if r.locks.conflicts(t.FilePaths, t.ID) {
		t.State = StateBlocked
		r.mu.Unlock()
		ib.ClearCurrent() // free the current slot without counting it as finished
		r.requeueBlocked(t)
		r.appendEvent(eventlog.KindTaskBlocked, t.ID, agentID, nil)
		return nil, nil
	}

	r.locks.acquire(t.FilePaths, t.ID)
	t.State = StateInProgress
	t.StartedAt = time.Now()
	released := r.releaseCrossCodebaseDependentsLocked(t)
	r.mu.Unlock()

	r.agents.MarkWorking(agentID)
	r.appendEvent(eventlog.KindTaskStarted, t.ID, agentID, nil)
	if len(t.FilePaths) > 0 {
		r.appendEvent(eventlog.KindFileLocked, t.ID, agentID, map[string]string{"paths": strings.Join(t.FilePaths, ",")})
	}
	for _, dep := range released {
		r.tryAssign(dep)
	}

	out := *t
	return &out, nil
}

// requeueBlocked re-enqueues t at the head of its bucket so it is
// re-attempted in priority+FIFO order once the conflicting lock clears.
func (r *Registry) requeueBlocked(t *Task) {
	r.mu.Lock()
	assignee := t.AssigneeID
	r.mu.Unlock()

	if assignee == "" {
		return
	}
	if err := r.inboxes.For(assignee).Enqueue(t.ID, t.Priority.toInboxPriority()); err != nil {
		logging.Warn("task", "could not requeue blocked task %s: %v", t.ID, err)
	}
}

// Complete transitions agentID's current task to completed, releasing any
// file locks it held and attempting to unblock conflicting tasks.
func (r *Registry) Complete(agentID string, result string) error {
	return r.finish(agentID, StateCompleted, result, eventlog.KindTaskCompleted)
}

// Fail transitions agentID's current task to failed.
func (r *Registry) Fail(agentID string, reason string) error {
	return r.finish(agentID, StateFailed, reason, eventlog.KindTaskFailed)
}

func (r *Registry) finish(agentID string, newState State, note string, kind eventlog.Kind) error {
	ib := r.inboxes.For(agentID)
	taskID := ib.Current()
	if taskID == "" {
		return ErrNoCurrentTask
	}

	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownTask
	}
	if t.State != StateInProgress {
		r.mu.Unlock()
		return ErrInvalidTransition
	}

	t.State = newState
	t.CompletedAt = time.Now()
	r.locks.release(t.FilePaths, t.ID)
	r.recordTerminalLocked(t.ID)
	r.mu.Unlock()

	if newState == StateCompleted {
		ib.Complete()
	} else {
		ib.Fail()
	}
	r.agents.MarkIdle(agentID)

	r.appendEvent(kind, t.ID, agentID, map[string]string{"note": note})
	if len(t.FilePaths) > 0 {
		r.appendEvent(eventlog.KindFileUnlocked, t.ID, agentID, map[string]string{"paths": strings.Join(t.FilePaths, ",")})
	}

	r.retryBlockedOnPaths(t.FilePaths)
	return nil
}

func (r *Registry) recordTerminalLocked(taskID string) {
	r.completedOrder = append(r.completedOrder, taskID)
	if len(r.completedOrder) > r.boardRetention {
		r.completedOrder = r.completedOrder[len(r.completedOrder)-r.boardRetention:]
	}
}

func (r *Registry) releaseCrossCodebaseDependentsLocked(primary *Task) []*Task {
	group, ok := r.crossCodebaseGroups[primary.ID]
	if !ok || group.released || group.strategy != StrategySequential {
		return nil
	}
	group.released = true

	var out []*Task
	for _, depID := range group.dependents {
		if d, ok := r.tasks[depID]; ok {
			out = append(out, d)
		}
	}
	return out
}

// retryBlockedOnPaths logs, at debug level, that the locks on paths were
// released. It does not re-attempt any blocked task itself: a blocked
// task stays queued in its assignee's inbox and is promoted only when
// that agent next calls GetNext and the paths are free.
func (r *Registry) retryBlockedOnPaths(paths []string) {
	if len(paths) == 0 {
		return
	}
	logging.Debug("task", "released locks on %d paths, blocked tasks eligible for retry", len(paths))
}

// UpdateActivity implements auto-task synthesis (§4.6): if agentID has no
// current task, a task is synthesized from toolName/args and immediately
// enqueued+started as that agent's current task.
func (r *Registry) UpdateActivity(agentID, toolName string, args map[string]interface{}) (*Task, error) {
	ib := r.inboxes.For(agentID)
	if ib.Current() != "" {
		return nil, nil
	}

	title := synthesizeTitle(toolName, args)

	t := &Task{
		ID:             newTaskID(),
		Title:          title,
		State:          StatePending,
		CreatedAt:      time.Now(),
		AutoGenerated:  true,
		SourceToolName: toolName,
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	r.appendEvent(eventlog.KindTaskCreated, t.ID, "", taskCreationDetails(t))

	if err := ib.Enqueue(t.ID, inbox.PriorityNormal); err != nil {
		return nil, err
	}
	if _, err := ib.TakeNext(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	t.State = StateInProgress
	t.AssigneeID = agentID
	t.StartedAt = time.Now()
	r.mu.Unlock()

	r.agents.MarkWorking(agentID)
	r.appendEvent(eventlog.KindTaskAssigned, t.ID, agentID, map[string]string{"auto_generated": "true"})

	out := *t
	return &out, nil
}

// CompleteAuto finalizes the auto-generated task created by UpdateActivity
// once the underlying tool call returns, mapping success to completed and
// failure to failed (§4.9 step 6).
func (r *Registry) CompleteAuto(agentID string, success bool) error {
	ib := r.inboxes.For(agentID)
	taskID := ib.Current()
	if taskID == "" {
		return nil
	}

	r.mu.Lock()
	t, ok := r.tasks[taskID]
	r.mu.Unlock()
	if !ok || !t.AutoGenerated {
		return nil
	}

	if success {
		return r.Complete(agentID, "")
	}
	return r.Fail(agentID, "backend error")
}

func synthesizeTitle(toolName string, args map[string]interface{}) string {
	if path, ok := stringArg(args, "path"); ok {
		return fmt.Sprintf("Reading/Editing %s", filepath.Base(path))
	}
	if lib, ok := stringArg(args, "library_id"); ok {
		return fmt.Sprintf("Researching: %s", lib)
	}
	if lib, ok := stringArg(args, "library"); ok {
		return fmt.Sprintf("Researching: %s", lib)
	}
	return fmt.Sprintf("Using %s", toolName)
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Get returns a copy of taskID's record.
func (r *Registry) Get(taskID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Board is the snapshot returned by get_task_board.
type Board struct {
	Agents  []AgentSummary
	Pending []Task
}

// AgentSummary is one row of the task board's per-agent section.
type AgentSummary struct {
	AgentID        string
	CurrentTaskID  string
	CompletedCount int
	FailedCount    int
}

// GetBoard returns the current task board.
func (r *Registry) GetBoard() Board {
	var board Board

	for _, a := range r.agents.List() {
		ib := r.inboxes.For(a.ID)
		completed, failed := ib.Counts()
		board.Agents = append(board.Agents, AgentSummary{
			AgentID:        a.ID,
			CurrentTaskID:  ib.Current(),
			CompletedCount: completed,
			FailedCount:    failed,
		})
	}

	r.mu.Lock()
	for _, t := range r.tasks {
		if t.State == StatePending {
			board.Pending = append(board.Pending, *t)
		}
	}
	r.mu.Unlock()

	return board
}

func (r *Registry) appendEvent(kind eventlog.Kind, taskID, agentID string, details map[string]string) {
	if r.log == nil {
		return
	}
	if details == nil {
		details = map[string]string{}
	}
	details["task_id"] = taskID
	if _, err := r.log.Append("tasks", eventlog.Event{Kind: kind, AgentID: agentID, Details: details}); err != nil {
		logging.Error("task", err, "failed to append event %s for task %s", kind, taskID)
	}
}
