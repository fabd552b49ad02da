package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aldermoor/conductor/internal/events"
	"github.com/aldermoor/conductor/internal/task"
)

// DefaultStabilityDelay is how long the file system must stay quiet before a
// queued verification actually runs.
const DefaultStabilityDelay = 60 * time.Second

// DefaultMaxRetries bounds failed verification attempts per task before the
// task fails terminally.
const DefaultMaxRetries = 3

// Executor runs one verification (tests, acceptance criteria) for a request.
// Implementations are external to the core; the gate only interprets Passed.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Options configures a Gate.
type Options struct {
	StabilityDelay time.Duration // 0 selects DefaultStabilityDelay
	MaxRetries     int           // 0 selects DefaultMaxRetries
}

// Gate owns one pending verification per task id, each with a single
// cancellable stability timer. Arm/cancel for one id is atomic under the
// gate's lock; across ids there is no ordering guarantee.
type Gate struct {
	store  task.Store
	exec   Executor
	bus    *events.Bus
	logger *slog.Logger

	stability  time.Duration
	maxRetries int

	// ctx outlives every timer callback; Dispose cancels it so nothing
	// runs after the gate is gone.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entries  map[string]*pending
	disposed bool
}

// NewGate creates a Gate. The bus may be nil.
func NewGate(store task.Store, exec Executor, bus *events.Bus, logger *slog.Logger, opts Options) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StabilityDelay <= 0 {
		opts.StabilityDelay = DefaultStabilityDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		store:      store,
		exec:       exec,
		bus:        bus,
		logger:     logger,
		stability:  opts.StabilityDelay,
		maxRetries: opts.MaxRetries,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*pending),
	}
}

// Queue records a verification request and (re)starts its stability timer.
// Any existing timer for the same task id is cancelled first, and the retry
// count starts over at zero.
func (g *Gate) Queue(req Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disposed {
		return
	}

	if old, ok := g.entries[req.TaskID]; ok && old.timer != nil {
		old.timer.Stop()
	}

	entry := &pending{req: req, queuedAt: time.Now()}
	g.entries[req.TaskID] = entry
	g.armLocked(req.TaskID, entry)

	g.logger.Debug("verification queued",
		"task", req.TaskID, "priority", req.Priority.String(), "delay", g.stability)
}

// ResetStabilityTimer restarts the debounce for a task that is already
// pending, without touching its retry count. No-op for unknown ids. This is
// the inbound path for "files modified for task X" signals.
func (g *Gate) ResetStabilityTimer(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[taskID]
	if !ok || g.disposed {
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	g.armLocked(taskID, entry)
}

// armLocked bumps the entry's generation and starts a fresh stability timer.
// The fire callback carries the entry pointer as well as the generation:
// generations are per-entry, so a replacement entry restarts the count and a
// number alone cannot tell a stale fire from a current one.
// Callers must hold g.mu.
func (g *Gate) armLocked(taskID string, entry *pending) {
	entry.gen++
	gen := entry.gen
	entry.timer = time.AfterFunc(g.stability, func() {
		g.run(taskID, entry, gen)
	})
}

// RunNow cancels the debounce and verifies immediately. Returns the result
// and true when a pending entry existed.
func (g *Gate) RunNow(taskID string) (*Result, bool) {
	g.mu.Lock()
	entry, ok := g.entries[taskID]
	if !ok || g.disposed {
		g.mu.Unlock()
		return nil, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	entry.gen++
	gen := entry.gen
	g.mu.Unlock()

	return g.run(taskID, entry, gen), true
}

// Cancel clears the timer and pending entry for a task. Returns whether
// anything was actually pending; cancelling a non-existent entry is not an
// error.
func (g *Gate) Cancel(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[taskID]
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(g.entries, taskID)
	return true
}

// Pending reports whether a verification is queued for the task.
func (g *Gate) Pending(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[taskID]
	return ok
}

// PendingCount returns the number of queued verifications.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// RetryCount returns the current retry count for a pending task, or -1.
func (g *Gate) RetryCount(taskID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.entries[taskID]; ok {
		return entry.retryCount
	}
	return -1
}

// Dispose clears every outstanding timer and stops all future work. Required
// for clean shutdown so no timer fires after the gate itself is gone.
func (g *Gate) Dispose() {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.disposed = true
	for _, entry := range g.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	g.entries = make(map[string]*pending)
}

// run executes verification for a task if the (entry, gen) pair is still
// current. Stale fires - the entry was cancelled, replaced, re-armed, or the
// gate disposed - are no-ops. Entry identity is checked alongside the
// generation: a replacement entry starts its own generation count, so the
// same number can name two different requests.
func (g *Gate) run(taskID string, entry *pending, gen uint64) *Result {
	g.mu.Lock()
	if cur, ok := g.entries[taskID]; !ok || cur != entry || entry.gen != gen || g.disposed {
		g.mu.Unlock()
		return nil
	}
	entry.timer = nil
	req := entry.req
	g.mu.Unlock()

	res, err := g.exec.Execute(g.ctx, req)
	if err != nil {
		// Operational failure: modeled as a failed attempt, never a crash.
		g.logger.Warn("verification executor error", "task", taskID, "error", err)
		res = &Result{
			TaskID:   taskID,
			Passed:   false,
			Failures: []string{fmt.Sprintf("executor error: %v", err)},
			Coverage: -1,
		}
	}

	g.mu.Lock()
	if cur, ok := g.entries[taskID]; !ok || cur != entry || entry.gen != gen || g.disposed {
		// Cancelled or replaced while the executor was out; drop the result.
		g.mu.Unlock()
		return res
	}
	entry.lastResult = res

	switch {
	case res.Passed:
		delete(g.entries, taskID)
		attempts := entry.retryCount + 1
		g.mu.Unlock()

		if err := g.store.Complete(taskID); err != nil {
			g.logger.Warn("failed to mark verified task completed", "task", taskID, "error", err)
		}
		g.publish(events.TopicVerify, events.VerificationPassedEvent{
			ID: taskID, Attempts: attempts, Timestamp: time.Now(),
		})
		g.logger.Info("verification passed", "task", taskID, "attempts", attempts)

	case entry.retryCount < g.maxRetries:
		entry.retryCount++
		retries := entry.retryCount
		g.mu.Unlock()

		// Needs revision: the task goes back to ready, the entry stays so
		// the next file change re-enters the debounce path.
		if err := g.store.SetStatus(taskID, task.StatusReady); err != nil {
			g.logger.Warn("failed to mark task for revision", "task", taskID, "error", err)
		}
		g.publish(events.TopicVerify, events.VerificationFailedEvent{
			ID: taskID, RetryCount: retries, Failures: res.Failures, Timestamp: time.Now(),
		})
		g.logger.Warn("verification failed, task needs revision",
			"task", taskID, "retry", retries, "max_retries", g.maxRetries)

	default:
		delete(g.entries, taskID)
		retries := entry.retryCount
		g.mu.Unlock()

		reason := fmt.Sprintf("verification failed after %d attempts", retries+1)
		if err := g.store.Fail(taskID, reason); err != nil {
			g.logger.Warn("failed to mark task terminally failed", "task", taskID, "error", err)
		}
		g.publish(events.TopicVerify, events.VerificationExhaustedEvent{
			ID: taskID, RetryCount: retries, Timestamp: time.Now(),
		})
		g.logger.Error("verification retries exhausted", "task", taskID, "attempts", retries+1)
	}

	return res
}

func (g *Gate) publish(topic string, event events.Event) {
	if g.bus != nil {
		g.bus.Publish(topic, event)
	}
}
