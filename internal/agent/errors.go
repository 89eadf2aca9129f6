package agent

import "errors"

// ErrUnknownAgent is returned by operations referencing an agent id that
// the registry does not recognize.
var ErrUnknownAgent = errors.New("unknown agent")
