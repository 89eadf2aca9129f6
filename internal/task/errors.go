package task

import "errors"

var (
	// ErrUnknownTask is returned when referencing a task id the registry
	// does not know about.
	ErrUnknownTask = errors.New("unknown task")

	// ErrNoCurrentTask is returned by Complete/Fail when the calling
	// agent has no in-progress task.
	ErrNoCurrentTask = errors.New("agent has no current task")

	// ErrInvalidTransition is returned when a state transition is
	// attempted from a state that does not permit it (§4.6).
	ErrInvalidTransition = errors.New("invalid task state transition")
)
