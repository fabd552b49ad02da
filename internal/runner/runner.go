// Package runner drives the coordination loop: drain the queue in
// bounded-concurrency waves, hand tasks to the external worker, and gate
// completion behind the verification debounce.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aldermoor/conductor/internal/events"
	"github.com/aldermoor/conductor/internal/queue"
	"github.com/aldermoor/conductor/internal/session"
	"github.com/aldermoor/conductor/internal/task"
	"github.com/aldermoor/conductor/internal/verify"
	"github.com/aldermoor/conductor/internal/worker"
)

// TaskResult records the outcome of one worker dispatch.
type TaskResult struct {
	TaskID  string
	Success bool
	Output  string
	Err     error
}

// Config configures the Runner.
type Config struct {
	Concurrency  int           // max concurrent worker dispatches (default 4)
	PollInterval time.Duration // idle wait between scheduling passes (default 250ms)
}

// Runner ties the queue, the worker, the verification gate, and the session
// together for one execution run.
type Runner struct {
	cfg    Config
	queue  *queue.Queue
	gate   *verify.Gate
	sess   *session.Session
	wrk    worker.Worker
	locks  *FileLocks
	bus    *events.Bus
	logger *slog.Logger

	lastStats queue.Stats // loop-local, for change-triggered stat events

	mu      sync.Mutex
	results []TaskResult
}

// New creates a Runner. The bus is required: verification outcomes reach the
// session through it.
func New(cfg Config, q *queue.Queue, gate *verify.Gate, sess *session.Session, wrk worker.Worker, bus *events.Bus, logger *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		queue:  q,
		gate:   gate,
		sess:   sess,
		wrk:    wrk,
		locks:  NewFileLocks(),
		bus:    bus,
		logger: logger,
	}
}

// Run executes the session's tasks until everything is terminal, the session
// leaves running, or ctx is cancelled. Individual task failures never abort
// the run; unrelated unblocked tasks keep going.
func (r *Runner) Run(ctx context.Context) ([]TaskResult, error) {
	if err := r.sess.StartExecution(); err != nil {
		return nil, err
	}

	// Mirror canonical status changes into the session-local copy so
	// auto-completion can fire.
	mirrorCtx, stopMirror := context.WithCancel(ctx)
	defer stopMirror()
	go r.mirrorStatuses(mirrorCtx)

	for {
		if err := ctx.Err(); err != nil {
			_ = r.sess.CancelExecution("context cancelled")
			r.gate.Dispose()
			return r.snapshot(), err
		}
		if st := r.sess.State(); st != session.StateRunning {
			r.logger.Info("session left running state, stopping", "session", r.sess.ID, "state", st.String())
			return r.snapshot(), nil
		}
		r.publishStats()

		wave := r.claimWave()
		if len(wave) == 0 {
			if r.idle() {
				r.settleSession()
				return r.snapshot(), nil
			}
			select {
			case <-ctx.Done():
				continue
			case <-time.After(r.cfg.PollInterval):
				continue
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Concurrency)
		for _, t := range wave {
			t := t
			g.Go(func() error {
				r.executeTask(gctx, t)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// claimWave pulls up to Concurrency eligible tasks off the queue, marking
// each one running as it is claimed.
func (r *Runner) claimWave() []*task.Node {
	var wave []*task.Node
	for len(wave) < r.cfg.Concurrency {
		t := r.queue.NextReadyTask()
		if t == nil {
			break
		}
		if !r.queue.StartTask(t.ID) {
			break
		}
		wave = append(wave, t)
	}
	return wave
}

// idle reports whether nothing can or will run anymore: no task in flight,
// no verification outstanding, and nothing claimable. Pending tasks stranded
// behind a failed dependency count as unreachable, not as work.
func (r *Runner) idle() bool {
	stats := r.queue.GetStats()
	return stats.Running == 0 && r.gate.PendingCount() == 0 &&
		r.queue.NextReadyTask() == nil
}

// settleSession records why the run ended once the loop goes idle. When every
// task completed, it waits briefly for the status mirror to deliver the final
// event that triggers auto-completion. Otherwise the remainder is unreachable
// and the session is failed so the state log says so.
func (r *Runner) settleSession() {
	stats := r.queue.GetStats()
	if stats.Completed == stats.Total {
		deadline := time.Now().Add(2 * time.Second)
		for r.sess.State() == session.StateRunning && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		return
	}
	reason := fmt.Sprintf("stopped with %d of %d tasks completed", stats.Completed, stats.Total)
	if err := r.sess.FailExecution(reason); err == nil {
		r.logger.Warn("run stopped with unreachable tasks remaining",
			"session", r.sess.ID, "completed", stats.Completed, "total", stats.Total)
	}
}

// executeTask dispatches one task to the worker under its file locks and, on
// success, queues the verification that will eventually complete it.
func (r *Runner) executeTask(ctx context.Context, t *task.Node) {
	files := t.Files()
	r.locks.LockAll(files)
	defer r.locks.UnlockAll(files)

	outcome, err := r.wrk.Execute(ctx, worker.Assignment{Task: t, ContextFiles: t.ContextFiles})
	if err != nil {
		r.queue.FailTask(t.ID, err.Error())
		r.record(TaskResult{TaskID: t.ID, Success: false, Err: err})
		return
	}

	r.record(TaskResult{TaskID: t.ID, Success: true, Output: outcome.Output})

	// The task stays running until the gate rules on it. A re-dispatch after
	// a failed verification only resets the debounce, keeping the retry
	// count intact.
	if r.gate.Pending(t.ID) {
		r.gate.ResetStabilityTimer(t.ID)
		return
	}
	r.gate.Queue(verify.Request{
		TaskID:             t.ID,
		ModifiedFiles:      outcome.ModifiedFiles,
		AcceptanceCriteria: criteriaOf(t),
		Priority:           verify.PriorityNormal,
	})
}

// criteriaOf extracts acceptance criteria from task metadata.
func criteriaOf(t *task.Node) []string {
	if t.Metadata == nil {
		return nil
	}
	switch v := t.Metadata["criteria"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// mirrorStatuses forwards canonical task status changes and verification
// outcomes into the session's local copy.
func (r *Runner) mirrorStatuses(ctx context.Context) {
	ch := r.bus.SubscribeAll(0)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.TaskStatusChangedEvent:
				if st, ok := task.StatusFromString(e.Status); ok {
					_ = r.sess.UpdateTaskStatus(e.ID, st)
				}
			case events.VerificationPassedEvent:
				_ = r.sess.UpdateTaskStatus(e.ID, task.StatusCompleted)
			case events.VerificationExhaustedEvent:
				_ = r.sess.UpdateTaskStatus(e.ID, task.StatusFailed)
			case events.VerificationFailedEvent:
				_ = r.sess.UpdateTaskStatus(e.ID, task.StatusReady)
			}
		}
	}
}

// publishStats emits a queue snapshot whenever the per-status counts change.
// Only the scheduling loop calls this.
func (r *Runner) publishStats() {
	stats := r.queue.GetStats()
	if stats == r.lastStats {
		return
	}
	r.lastStats = stats
	r.bus.Publish(events.TopicTask, events.QueueStatsEvent{
		Pending:   stats.Pending,
		Ready:     stats.Ready,
		Running:   stats.Running,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Blocked:   stats.Blocked,
		Total:     stats.Total,
		Timestamp: time.Now(),
	})
}

func (r *Runner) record(res TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *Runner) snapshot() []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskResult(nil), r.results...)
}
