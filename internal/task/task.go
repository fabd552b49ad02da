// Package task defines the coordinator's core work-item type: a unit of work
// with an id, a dependency set, a priority, and a closed status enum.
package task

import "time"

// Status represents the current state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies
	StatusReady                   // All dependencies completed, eligible to run
	StatusRunning                 // Currently executing
	StatusCompleted               // Finished and verified
	StatusFailed                  // Finished with error or exhausted verification retries
	StatusBlocked                 // Cannot proceed (upstream failure or external hold)
)

// String returns the lowercase name used in logs, events, and storage.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status has no further task-level transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusFromString parses the lowercase status name. Returns false for
// anything outside the closed enum.
func StatusFromString(s string) (Status, bool) {
	for _, st := range Statuses() {
		if st.String() == s {
			return st, true
		}
	}
	return StatusPending, false
}

// Statuses lists every valid status, in bucket order for stats aggregation.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusReady, StatusRunning,
		StatusCompleted, StatusFailed, StatusBlocked,
	}
}

// Team identifies which executor class handles a task.
type Team string

const (
	TeamBackend  Team = "backend"
	TeamFrontend Team = "frontend"
	TeamTesting  Team = "testing"
	TeamDocs     Team = "docs"
	TeamInfra    Team = "infra"
)

// DefaultPriority is the baseline for tasks that set no explicit priority.
// Lower values are more urgent. Zero is reserved to mean "unset" and is
// scheduled at this baseline, so 1 is the most urgent priority a task can
// ask for.
const DefaultPriority = 5

// MetadataFilesKey is the metadata key holding the task's associated file paths.
const MetadataFilesKey = "files"

// Node represents a unit of work in the dependency graph.
type Node struct {
	ID          string         // Unique identifier
	Description string         // Human-readable summary
	DependsOn   []string       // Task IDs this task depends on
	Priority    int            // Lower = more urgent; zero means unset and runs at DefaultPriority
	Status      Status
	Team        Team           // Executor class that handles this task
	Group       string         // Parent feature identifier for progress grouping
	Estimate    time.Duration  // Estimated duration, used for remaining-time sums
	Metadata    map[string]any // Opaque bag; may carry MetadataFilesKey

	// ContextFiles is populated by the queue when the task is handed out:
	// context references for completed dependencies plus metadata file paths.
	ContextFiles []string
}

// Files returns the file paths embedded in the node's metadata, if any.
// Accepts both []string and []any (the latter is what encoding/json produces).
func (n *Node) Files() []string {
	if n.Metadata == nil {
		return nil
	}
	switch v := n.Metadata[MetadataFilesKey].(type) {
	case []string:
		return v
	case []any:
		files := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				files = append(files, s)
			}
		}
		return files
	}
	return nil
}

// Clone returns a deep copy so callers can hand nodes out without aliasing
// the canonical record.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.DependsOn != nil {
		cp.DependsOn = append([]string(nil), n.DependsOn...)
	}
	if n.ContextFiles != nil {
		cp.ContextFiles = append([]string(nil), n.ContextFiles...)
	}
	if n.Metadata != nil {
		cp.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
