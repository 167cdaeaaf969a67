package connection

import "errors"

// Connection errors.
var (
	// ErrNotFound indicates the referenced session or service is absent.
	// The caller's view is stale, not a programming bug.
	ErrNotFound = errors.New("session or service not found")

	// ErrAlreadyExists indicates a duplicate service-type add. Callers
	// should treat it as an idempotent no-op.
	ErrAlreadyExists = errors.New("service already exists in session")

	// ErrResourceExhausted indicates the session identifier space is full.
	// Fatal for that create request only.
	ErrResourceExhausted = errors.New("session identifiers exhausted")

	// ErrClosed indicates an operation on a closed or closing connection.
	ErrClosed = errors.New("connection closed")
)
