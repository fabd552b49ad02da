// Package worker is the boundary to the external coding agent that executes
// tasks. The coordinator treats workers as opaque: it hands a task over and
// receives a textual result plus the set of files the worker touched.
package worker

import (
	"context"

	"github.com/aldermoor/conductor/internal/task"
)

// Assignment is the unit of work handed to a worker.
type Assignment struct {
	Task         *task.Node
	ContextFiles []string // enriched context bundle from the queue
}

// Outcome is what a worker reports back when an assignment lands.
type Outcome struct {
	TaskID        string
	Output        string
	ModifiedFiles []string
}

// Worker executes assignments. Implementations wrap external coding agents;
// the process-backed CLI worker in this package is the default.
type Worker interface {
	// Execute runs the assignment to completion or ctx cancellation.
	Execute(ctx context.Context, a Assignment) (Outcome, error)

	// Close releases any resources held by the worker.
	Close() error
}
