package workflow

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups of unknown request ids
var ErrNotFound = errors.New("action request not found")

// ErrUnknownAction is returned when proposing an unregistered action
var ErrUnknownAction = errors.New("unknown action")

// ErrReadAction is returned when proposing a Read-class action, which
// executes directly and never enters the confirmation workflow
var ErrReadAction = errors.New("read actions execute directly and cannot be proposed")

// InvalidStateError indicates an illegal state transition attempt.
// Re-deciding a terminal request deterministically fails with this
// error instead of re-executing.
type InvalidStateError struct {
	RequestID string
	Status    Status
	Attempted Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("request %s is %s, cannot transition to %s", e.RequestID, e.Status, e.Attempted)
}
