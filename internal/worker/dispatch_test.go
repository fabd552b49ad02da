package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/aldermoor/conductor/internal/task"
)

// stubWorker records which worker handled an assignment.
type stubWorker struct {
	name     string
	executed []string
	closed   bool
	closeErr error
}

func (w *stubWorker) Execute(_ context.Context, a Assignment) (Outcome, error) {
	w.executed = append(w.executed, a.Task.ID)
	return Outcome{TaskID: a.Task.ID, Output: w.name}, nil
}

func (w *stubWorker) Close() error {
	w.closed = true
	return w.closeErr
}

func TestTeamDispatcherRouting(t *testing.T) {
	backend := &stubWorker{name: "backend"}
	testing_ := &stubWorker{name: "testing"}
	fallback := &stubWorker{name: "fallback"}

	d := NewTeamDispatcher()
	d.Register(task.TeamBackend, backend)
	d.Register(task.TeamTesting, testing_)
	d.SetFallback(fallback)

	tests := []struct {
		name string
		team task.Team
		want string
	}{
		{"registered team", task.TeamBackend, "backend"},
		{"other registered team", task.TeamTesting, "testing"},
		{"unregistered team falls back", task.TeamDocs, "fallback"},
		{"empty team falls back", "", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := d.Execute(context.Background(), Assignment{Task: &task.Node{ID: "t1", Team: tt.team}})
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if out.Output != tt.want {
				t.Errorf("routed to %q, want %q", out.Output, tt.want)
			}
		})
	}
}

func TestTeamDispatcherNoWorker(t *testing.T) {
	d := NewTeamDispatcher()
	_, err := d.Execute(context.Background(), Assignment{Task: &task.Node{ID: "t1", Team: task.TeamInfra}})
	if err == nil {
		t.Fatal("Execute should fail with no worker and no fallback")
	}
}

func TestTeamDispatcherClose(t *testing.T) {
	backend := &stubWorker{name: "backend", closeErr: errors.New("close failed")}
	fallback := &stubWorker{name: "fallback"}

	d := NewTeamDispatcher()
	d.Register(task.TeamBackend, backend)
	d.SetFallback(fallback)

	err := d.Close()
	if err == nil {
		t.Error("Close should surface the first worker error")
	}
	if !backend.closed || !fallback.closed {
		t.Error("Close should reach every worker despite errors")
	}
}
