// internal/match/errors.go
package match

import (
	"errors"
	"fmt"
)

// Sentinel errors for the match lifecycle. Every one is locally
// recoverable: the router converts it into an error reply to the sender
// and no other connection is affected.
var (
	// ErrNotFound means the match id is unknown.
	ErrNotFound = errors.New("match not found")

	// ErrConflict means a duplicate match id on create, or a duplicate
	// player on join.
	ErrConflict = errors.New("conflict")

	// ErrForbidden means a non-host issued a host-only command.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the command arrived in the wrong lifecycle
	// phase (e.g. join after the match started).
	ErrInvalidState = errors.New("invalid match state")

	// ErrPrecondition means the operation's preconditions were not met
	// (e.g. starting with no players).
	ErrPrecondition = errors.New("precondition failed")
)

// ValidationError reports missing or malformed command fields.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UpstreamError wraps a failed persistence call. The optimistic in-memory
// mutation has already been rolled back by the time callers see it.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
