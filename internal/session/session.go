// Package session tracks one execution run of a plan's task breakdown through
// a strict state machine, with an append-only transition log as audit trail.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aldermoor/conductor/internal/events"
	"github.com/aldermoor/conductor/internal/task"
)

// State is the execution-session state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRunning
	StatePaused
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state has no outgoing transitions. Failed is
// not terminal: it re-enters preparing on retry.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// transitions is the exhaustive legal-transition table. Any pair not listed
// is illegal.
var transitions = map[State][]State{
	StateIdle:      {StatePreparing, StateCancelled},
	StatePreparing: {StateRunning, StateCancelled, StateFailed},
	StateRunning:   {StatePaused, StateCompleted, StateCancelled, StateFailed},
	StatePaused:    {StateRunning, StateCancelled},
	StateCompleted: {},
	StateCancelled: {},
	StateFailed:    {StatePreparing},
}

// TransitionError reports an illegal state-machine transition, naming both
// states. The session is left unchanged.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal session transition from %s to %s", e.From, e.To)
}

// StateChange is one entry in the session's append-only state log.
type StateChange struct {
	State     State
	Timestamp time.Time
	Reason    string
}

// Session binds a task breakdown to one execution run. Task statuses are a
// session-local mutable copy: pausing or retrying a session never corrupts
// the canonical task records.
type Session struct {
	ID   string
	Plan string // the original plan identifier or goal text

	mu        sync.Mutex
	tasks     map[string]*task.Node // breakdown, keyed by id
	deps      map[string][]string   // session-local dependency map
	statuses  map[string]task.Status
	state     State
	startedAt *time.Time
	endedAt   *time.Time
	stateLog  []StateChange

	bus *events.Bus // optional
}

// New creates an idle session over the given breakdown. The bus may be nil.
func New(plan string, tasks []*task.Node, bus *events.Bus) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Plan:     plan,
		tasks:    make(map[string]*task.Node, len(tasks)),
		deps:     make(map[string][]string, len(tasks)),
		statuses: make(map[string]task.Status, len(tasks)),
		state:    StateIdle,
		bus:      bus,
	}
	for _, t := range tasks {
		cp := t.Clone()
		s.tasks[cp.ID] = cp
		s.deps[cp.ID] = append([]string(nil), cp.DependsOn...)
		s.statuses[cp.ID] = cp.Status
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns when the session first entered running, or nil.
func (s *Session) StartedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt returns when the session entered a terminal state, or nil.
func (s *Session) EndedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// StateLog returns a copy of the append-only transition log.
func (s *Session) StateLog() []StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StateChange(nil), s.stateLog...)
}

// TaskStatus returns the session-local status copy for a task.
func (s *Session) TaskStatus(id string) (task.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	return st, ok
}

// transitionLocked applies one legal transition and appends to the state log.
// Callers must hold s.mu.
func (s *Session) transitionLocked(to State, reason string) error {
	legal := false
	for _, next := range transitions[s.state] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return &TransitionError{From: s.state, To: to}
	}

	from := s.state
	now := time.Now()
	s.state = to
	s.stateLog = append(s.stateLog, StateChange{State: to, Timestamp: now, Reason: reason})

	if to == StateRunning && s.startedAt == nil {
		s.startedAt = &now
	}
	if to.IsTerminal() {
		s.endedAt = &now
	}

	if s.bus != nil {
		s.bus.Publish(events.TopicSession, events.SessionStateChangedEvent{
			SessionID: s.ID,
			From:      from.String(),
			To:        to.String(),
			Reason:    reason,
			Timestamp: now,
		})
	}
	return nil
}

// StartExecution moves idle -> preparing -> running in one call.
func (s *Session) StartExecution() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(StatePreparing, "Execution requested"); err != nil {
		return err
	}
	return s.transitionLocked(StateRunning, "Preparation complete")
}

// PauseExecution moves running -> paused.
func (s *Session) PauseExecution(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason == "" {
		reason = "Paused by caller"
	}
	return s.transitionLocked(StatePaused, reason)
}

// ResumeExecution moves paused -> running.
func (s *Session) ResumeExecution() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(StateRunning, "Resumed")
}

// CancelExecution moves any non-terminal state to cancelled.
func (s *Session) CancelExecution(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason == "" {
		reason = "Cancelled by caller"
	}
	return s.transitionLocked(StateCancelled, reason)
}

// FailExecution moves preparing or running to failed.
func (s *Session) FailExecution(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(StateFailed, reason)
}

// RetryExecution re-enters a failed session: failed -> preparing -> running.
func (s *Session) RetryExecution() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(StatePreparing, "Retrying after failure"); err != nil {
		return err
	}
	return s.transitionLocked(StateRunning, "Preparation complete")
}

// UpdateTaskStatus mutates the session-local status copy for one task. If the
// session is running and every tracked task is now completed, the session
// auto-completes with reason "All tasks completed" - the only transition
// triggered indirectly rather than by a control call.
func (s *Session) UpdateTaskStatus(id string, status task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[id]; !ok {
		return &task.NotFoundError{ID: id}
	}
	s.statuses[id] = status

	if s.state != StateRunning {
		return nil
	}
	for _, st := range s.statuses {
		if st != task.StatusCompleted {
			return nil
		}
	}
	return s.transitionLocked(StateCompleted, "All tasks completed")
}

// NextAvailableTasks returns every pending or ready task whose recorded
// dependencies (the session's own dependency map, not the live graph) are all
// completed. Returns an empty slice unless the session is running.
func (s *Session) NextAvailableTasks() []*task.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := []*task.Node{}
	if s.state != StateRunning {
		return available
	}

	for id, st := range s.statuses {
		if st != task.StatusPending && st != task.StatusReady {
			continue
		}
		unblocked := true
		for _, depID := range s.deps[id] {
			if s.statuses[depID] != task.StatusCompleted {
				unblocked = false
				break
			}
		}
		if unblocked {
			available = append(available, s.tasks[id].Clone())
		}
	}
	return available
}
