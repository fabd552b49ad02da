package graph

import "fmt"

// SelfDependencyError reports an edge from a task to itself.
type SelfDependencyError struct {
	ID string
}

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("task %q cannot depend on itself", e.ID)
}

// MissingDependencyError reports an edge pointing at an unknown task id.
type MissingDependencyError struct {
	From string
	To   string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.From, e.To)
}

// CircularDependencyError reports an edge or task set that closes a cycle.
type CircularDependencyError struct {
	From string
	To   string
}

func (e *CircularDependencyError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("circular dependency involving task %q", e.To)
	}
	return fmt.Sprintf("adding dependency %q -> %q would create a cycle", e.From, e.To)
}

// InvalidIDError reports a task id that fails the format rules: ids must be
// non-empty and must not start with whitespace or '-'.
type InvalidIDError struct {
	ID     string
	Reason string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid task id %q: %s", e.ID, e.Reason)
}
