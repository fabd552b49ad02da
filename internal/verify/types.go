// Package verify gates task completion behind a debounced, retrying
// verification pass: file-change signals reset a per-task stability timer,
// and only a quiet period triggers the actual verification run.
package verify

import "time"

// Priority classes a verification request.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityImmediate
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Request asks for a task's landed work to be verified.
type Request struct {
	TaskID             string
	ModifiedFiles      []string
	AcceptanceCriteria []string
	Priority           Priority
}

// CriterionResult is the per-criterion outcome, with optional evidence.
type CriterionResult struct {
	Criterion string
	Passed    bool
	Evidence  string
}

// Result is the outcome of one verification run. The gate interprets only
// Passed; everything else is handed to the status layer and discarded.
type Result struct {
	TaskID          string
	Passed          bool
	TestsRun        int
	TestsPassed     int
	TestsFailed     int
	Failures        []string
	Criteria        []CriterionResult
	Regression      bool
	Coverage        float64 // percentage; negative when not measured
	Recommendations []string
}

// pending wraps a queued request with its debounce bookkeeping. The gen
// counter invalidates stale timer fires within one entry: every re-arm bumps
// it. A fire is current only when both the entry pointer and the gen still
// match, since a replacement entry restarts the count from zero.
type pending struct {
	req        Request
	queuedAt   time.Time
	retryCount int
	lastResult *Result
	timer      *time.Timer
	gen        uint64
}
