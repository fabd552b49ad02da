package events

import "time"

// Event is the base interface for everything published on the bus.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants.
const (
	TopicTask    = "task"
	TopicSession = "session"
	TopicVerify  = "verify"
)

// Event type constants.
const (
	EventTypeTaskStatusChanged   = "task.status_changed"
	EventTypeSessionStateChanged = "session.state_changed"
	EventTypeVerifyPassed        = "verify.passed"
	EventTypeVerifyFailed        = "verify.failed"
	EventTypeVerifyExhausted     = "verify.max_retries_exceeded"
	EventTypeQueueStats          = "queue.stats"
)

// TaskStatusChangedEvent is published when a task's canonical status changes.
type TaskStatusChangedEvent struct {
	ID        string
	Status    string
	Reason    string
	Timestamp time.Time
}

func (e TaskStatusChangedEvent) EventType() string { return EventTypeTaskStatusChanged }
func (e TaskStatusChangedEvent) TaskID() string    { return e.ID }

// SessionStateChangedEvent is published on every execution-session transition.
type SessionStateChangedEvent struct {
	SessionID string
	From      string
	To        string
	Reason    string
	Timestamp time.Time
}

func (e SessionStateChangedEvent) EventType() string { return EventTypeSessionStateChanged }
func (e SessionStateChangedEvent) TaskID() string    { return "" }

// VerificationPassedEvent is published when a task clears verification.
type VerificationPassedEvent struct {
	ID        string
	Attempts  int
	Timestamp time.Time
}

func (e VerificationPassedEvent) EventType() string { return EventTypeVerifyPassed }
func (e VerificationPassedEvent) TaskID() string    { return e.ID }

// VerificationFailedEvent is published on a failed verification attempt that
// still has retries left.
type VerificationFailedEvent struct {
	ID         string
	RetryCount int
	Failures   []string
	Timestamp  time.Time
}

func (e VerificationFailedEvent) EventType() string { return EventTypeVerifyFailed }
func (e VerificationFailedEvent) TaskID() string    { return e.ID }

// VerificationExhaustedEvent is published when a task runs out of
// verification retries and fails terminally.
type VerificationExhaustedEvent struct {
	ID         string
	RetryCount int
	Timestamp  time.Time
}

func (e VerificationExhaustedEvent) EventType() string { return EventTypeVerifyExhausted }
func (e VerificationExhaustedEvent) TaskID() string    { return e.ID }

// QueueStatsEvent carries a periodic snapshot of per-status task counts.
type QueueStatsEvent struct {
	Pending   int
	Ready     int
	Running   int
	Completed int
	Failed    int
	Blocked   int
	Total     int
	Timestamp time.Time
}

func (e QueueStatsEvent) EventType() string { return EventTypeQueueStats }
func (e QueueStatsEvent) TaskID() string    { return "" }
