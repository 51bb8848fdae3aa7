package taskq

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("taskq: no store configured")
	ErrStoreClosed = errors.New("taskq: store closed")

	// Not found errors.
	ErrTaskNotFound = errors.New("taskq: task not found")

	// Conflict errors.
	ErrTaskAlreadyExists = errors.New("taskq: task already exists")

	// Dispatch errors.
	ErrNoHandler = errors.New("taskq: no handler registered for task type")

	// State errors.
	ErrInvalidState       = errors.New("taskq: invalid status transition")
	ErrMaxAttemptsReached = errors.New("taskq: max attempts reached")
)
