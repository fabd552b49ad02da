package watch

import (
	"sync"

	"github.com/aldermoor/conductor/internal/verify"
)

// GateSink adapts file-change signals into verification-gate calls: the first
// change for an unguarded task queues a verification, subsequent changes
// reset the stability timer.
type GateSink struct {
	gate *verify.Gate

	mu       sync.RWMutex
	requests map[string]verify.Request // base request per task id
}

// NewGateSink creates a GateSink over the gate.
func NewGateSink(gate *verify.Gate) *GateSink {
	return &GateSink{
		gate:     gate,
		requests: make(map[string]verify.Request),
	}
}

// Expect registers the verification request to use when the task's files
// start changing.
func (s *GateSink) Expect(req verify.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.TaskID] = req
}

// Forget drops the registered request for a task.
func (s *GateSink) Forget(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, taskID)
}

// FileChanged implements Sink.
func (s *GateSink) FileChanged(taskID, path string) {
	if s.gate.Pending(taskID) {
		s.gate.ResetStabilityTimer(taskID)
		return
	}

	s.mu.RLock()
	req, ok := s.requests[taskID]
	s.mu.RUnlock()
	if !ok {
		req = verify.Request{TaskID: taskID}
	}
	// Copy before appending: the registered request's slice is shared across
	// calls and must never be written through.
	req.ModifiedFiles = append(append([]string(nil), req.ModifiedFiles...), path)
	s.gate.Queue(req)
}

var _ Sink = (*GateSink)(nil)
