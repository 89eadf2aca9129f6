package codebase

import "errors"

var (
	// ErrDuplicateWorkspace is returned when registering a workspace path
	// already owned by a different codebase id.
	ErrDuplicateWorkspace = errors.New("workspace path already registered to another codebase")

	// ErrUnknownCodebase is returned when referencing a codebase id the
	// registry does not know about.
	ErrUnknownCodebase = errors.New("unknown codebase")
)
