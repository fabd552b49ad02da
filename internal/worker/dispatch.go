package worker

import (
	"context"
	"fmt"

	"github.com/aldermoor/conductor/internal/task"
)

// TeamDispatcher routes each assignment to the worker registered for the
// task's team. Tasks without a team use the fallback worker, if set.
type TeamDispatcher struct {
	workers  map[task.Team]Worker
	fallback Worker
}

// NewTeamDispatcher creates an empty dispatcher.
func NewTeamDispatcher() *TeamDispatcher {
	return &TeamDispatcher{workers: make(map[task.Team]Worker)}
}

// Register maps a team to a worker.
func (d *TeamDispatcher) Register(team task.Team, w Worker) {
	d.workers[team] = w
}

// SetFallback sets the worker used when a task's team has no registration.
func (d *TeamDispatcher) SetFallback(w Worker) {
	d.fallback = w
}

// Execute dispatches on the assignment's team.
func (d *TeamDispatcher) Execute(ctx context.Context, a Assignment) (Outcome, error) {
	w, ok := d.workers[a.Task.Team]
	if !ok {
		w = d.fallback
	}
	if w == nil {
		return Outcome{TaskID: a.Task.ID}, fmt.Errorf("no worker registered for team %q", a.Task.Team)
	}
	return w.Execute(ctx, a)
}

// Close closes every registered worker, returning the first error.
func (d *TeamDispatcher) Close() error {
	var first error
	for _, w := range d.workers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	if d.fallback != nil {
		if err := d.fallback.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Worker = (*TeamDispatcher)(nil)
