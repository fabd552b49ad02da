// Package queue selects the next runnable task from the shared task store:
// ready tasks whose dependencies have all completed, by ascending priority,
// with pending tasks promoted once their dependencies catch up.
package queue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aldermoor/conductor/internal/events"
	"github.com/aldermoor/conductor/internal/task"
)

// Queue coordinates task selection over an injected task store. All store
// failures are logged and surfaced as false returns so a scheduling loop can
// treat them as "retry or skip" rather than fatal.
type Queue struct {
	store  task.Store
	bus    *events.Bus
	logger *slog.Logger

	mu           sync.Mutex
	contextCache map[string][]string // task id -> enriched context files
}

// New creates a Queue over the given store. The bus may be nil when no
// subscriber cares about status events.
func New(store task.Store, bus *events.Bus, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:        store,
		bus:          bus,
		logger:       logger,
		contextCache: make(map[string][]string),
	}
}

// NextReadyTask returns the next eligible task, or nil when nothing can run.
// Ready tasks are preferred; if none qualify, a pending task whose
// dependencies have since completed is promoted. Ties break by ascending
// priority, then id for determinism. The returned task is a copy enriched
// with context files; callers never receive the canonical record.
func (q *Queue) NextReadyTask() *task.Node {
	if t := q.pickEligible(q.store.ByStatus(task.StatusReady)); t != nil {
		return q.enrich(t)
	}
	if t := q.pickEligible(q.store.ByStatus(task.StatusPending)); t != nil {
		return q.enrich(t)
	}
	return nil
}

// pickEligible filters candidates down to those with every dependency
// completed and returns the most urgent one.
func (q *Queue) pickEligible(candidates []*task.Node) *task.Node {
	eligible := candidates[:0:0]
	for _, t := range candidates {
		if q.depsCompleted(t) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		pi, pj := priorityOf(eligible[i]), priorityOf(eligible[j])
		if pi != pj {
			return pi < pj
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible[0]
}

// depsCompleted reports whether every dependency of t is completed.
// Unknown dependency ids count as unmet.
func (q *Queue) depsCompleted(t *task.Node) bool {
	for _, depID := range t.DependsOn {
		dep, ok := q.store.Get(depID)
		if !ok || dep.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

func priorityOf(t *task.Node) int {
	if t.Priority == 0 {
		return task.DefaultPriority
	}
	return t.Priority
}

// enrich attaches the cached context bundle for the task: one context
// reference per completed dependency plus any file paths in the metadata.
// The bundle is cached per task id until the task completes.
func (q *Queue) enrich(t *task.Node) *task.Node {
	out := t.Clone()

	q.mu.Lock()
	cached, ok := q.contextCache[t.ID]
	q.mu.Unlock()
	if ok {
		out.ContextFiles = append([]string(nil), cached...)
		return out
	}

	var files []string
	for _, depID := range t.DependsOn {
		if dep, ok := q.store.Get(depID); ok && dep.Status == task.StatusCompleted {
			files = append(files, fmt.Sprintf("task://%s", depID))
		}
	}
	files = append(files, t.Files()...)

	q.mu.Lock()
	q.contextCache[t.ID] = files
	q.mu.Unlock()

	out.ContextFiles = append([]string(nil), files...)
	return out
}

// StartTask marks a task running. Returns false (and logs) on store failure.
func (q *Queue) StartTask(id string) bool {
	if err := q.store.Start(id); err != nil {
		q.logger.Warn("failed to start task", "task", id, "error", err)
		return false
	}
	q.publishStatus(id, task.StatusRunning, "")
	return true
}

// CompleteTask marks a task completed and invalidates its cached context
// enrichment so dependents never see stale context.
func (q *Queue) CompleteTask(id string) bool {
	if err := q.store.Complete(id); err != nil {
		q.logger.Warn("failed to complete task", "task", id, "error", err)
		return false
	}

	q.mu.Lock()
	delete(q.contextCache, id)
	q.mu.Unlock()

	q.publishStatus(id, task.StatusCompleted, "")
	return true
}

// FailTask marks a task failed. The reason is required and logged at warning
// level.
func (q *Queue) FailTask(id string, reason string) bool {
	if reason == "" {
		q.logger.Warn("FailTask called without a reason", "task", id)
		reason = "unspecified failure"
	}
	if err := q.store.Fail(id, reason); err != nil {
		q.logger.Warn("failed to fail task", "task", id, "reason", reason, "error", err)
		return false
	}
	q.logger.Warn("task failed", "task", id, "reason", reason)
	q.publishStatus(id, task.StatusFailed, reason)
	return true
}

func (q *Queue) publishStatus(id string, status task.Status, reason string) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(events.TopicTask, events.TaskStatusChangedEvent{
		ID:        id,
		Status:    status.String(),
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// Stats holds per-status task counts. Total always equals the sum of the
// six buckets.
type Stats struct {
	Pending   int
	Ready     int
	Running   int
	Completed int
	Failed    int
	Blocked   int
	Total     int
}

// GetStats counts tasks per status bucket.
func (q *Queue) GetStats() Stats {
	var s Stats
	for _, t := range q.store.All() {
		switch t.Status {
		case task.StatusPending:
			s.Pending++
		case task.StatusReady:
			s.Ready++
		case task.StatusRunning:
			s.Running++
		case task.StatusCompleted:
			s.Completed++
		case task.StatusFailed:
			s.Failed++
		case task.StatusBlocked:
			s.Blocked++
		}
		s.Total++
	}
	return s
}
