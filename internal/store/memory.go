// Package store provides task.Store implementations: an in-memory store for
// single-run coordination and a SQLite store for hosts that want durable
// task records. The coordinator core itself keeps no hidden state.
package store

import (
	"fmt"
	"sync"

	"github.com/aldermoor/conductor/internal/task"
)

// Memory is an in-memory task store guarded by one mutex. All reads return
// clones so callers can never alias the canonical records.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*task.Node
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*task.Node)}
}

// Add registers a task. Fails on duplicate ids.
func (m *Memory) Add(t *task.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[t.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", t.ID)
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

// Get returns the task with the given id.
func (m *Memory) Get(id string) (*task.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// All returns every task record.
func (m *Memory) All() []*task.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*task.Node, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// ByStatus returns every task currently in the given status.
func (m *Memory) ByStatus(status task.Status) []*task.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*task.Node{}
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// SetStatus moves a task to the given status unconditionally.
func (m *Memory) SetStatus(id string, status task.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return &task.NotFoundError{ID: id}
	}
	t.Status = status
	return nil
}

// Start marks a pending or ready task as running.
func (m *Memory) Start(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return &task.NotFoundError{ID: id}
	}
	if t.Status != task.StatusPending && t.Status != task.StatusReady {
		return fmt.Errorf("task %q is not eligible to start (status: %s)", id, t.Status)
	}
	t.Status = task.StatusRunning
	return nil
}

// Complete marks a task as completed.
func (m *Memory) Complete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return &task.NotFoundError{ID: id}
	}
	t.Status = task.StatusCompleted
	return nil
}

// Fail marks a task as failed, recording the reason in its metadata.
func (m *Memory) Fail(id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return &task.NotFoundError{ID: id}
	}
	t.Status = task.StatusFailed
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata["failure_reason"] = reason
	return nil
}

var _ task.Store = (*Memory)(nil)
