package task

import "fmt"

// Store is the canonical task record store consumed by the queue, the
// verification gate, and session construction. The coordinator never owns
// persistence; implementations live with the host (see internal/store).
type Store interface {
	// Get returns the task with the given id, or false if unknown.
	Get(id string) (*Node, bool)

	// All returns every task record.
	All() []*Node

	// ByStatus returns every task currently in the given status.
	ByStatus(status Status) []*Node

	// SetStatus moves a task to the given status unconditionally.
	SetStatus(id string, status Status) error

	// Start marks a pending or ready task as running.
	Start(id string) error

	// Complete marks a running task as completed.
	Complete(id string) error

	// Fail marks a task as failed, recording a human-readable reason.
	Fail(id string, reason string) error
}

// NotFoundError is returned by stores for operations on unknown task ids.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.ID)
}
