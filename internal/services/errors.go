package services

import (
	"errors"
	"fmt"
)

// ErrAccessExpired signals that a session's access window has closed. It is
// recovered into a fixed user-facing reply and never surfaces to the end
// user as a raw error.
var ErrAccessExpired = errors.New("session access expired")

// RunFailedError is the terminal failure of an assistant run. Not retried.
type RunFailedError struct {
	ThreadID string
	RunID    string
	Status   string
	Code     string
	Message  string
}

func (e *RunFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant run %s on thread %s ended %s: %s (%s)", e.RunID, e.ThreadID, e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("assistant run %s on thread %s ended %s", e.RunID, e.ThreadID, e.Status)
}
