package session

import "errors"

// Store errors.
var (
	// ErrNotFound is returned when a scope has no session and the caller
	// used a non-creating lookup. This indicates a routing defect.
	ErrNotFound = errors.New("session not found")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrBadTransition is returned when a status change is not in the
	// transition table. Transitions are rejected, never coerced.
	ErrBadTransition = errors.New("invalid status transition")
)
