package graph

import (
	"fmt"
	"sort"

	"github.com/aldermoor/conductor/internal/task"
)

// Report is the outcome of validating a candidate task set or edge.
// Warnings are informational and never flip Valid.
type Report struct {
	Valid    bool
	Errors   []error
	Warnings []string
}

// visit colors for the whole-set cycle DFS.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully explored
)

// ValidateTaskGraph validates a whole candidate task set before it is
// committed to a graph. Errors: invalid id format, dependencies on ids
// outside the set, cycles (three-color DFS, O(V+E)). Warnings: duplicate
// dependency ids within one task, orphan tasks with no edges at all.
func ValidateTaskGraph(tasks []*task.Node) Report {
	report := Report{Valid: true}

	known := make(map[string]*task.Node, len(tasks))
	for _, t := range tasks {
		if err := CheckID(t.ID); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		known[t.ID] = t
	}

	// Dedup per-task dependency lists; duplicates warn, missing ids error.
	adj := make(map[string][]string, len(known))
	for _, t := range tasks {
		if _, ok := known[t.ID]; !ok {
			continue
		}
		seen := make(map[string]struct{}, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if _, dup := seen[dep]; dup {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("task %q lists dependency %q more than once", t.ID, dep))
				continue
			}
			seen[dep] = struct{}{}

			if dep == t.ID {
				report.Errors = append(report.Errors, &SelfDependencyError{ID: t.ID})
				continue
			}
			if _, ok := known[dep]; !ok {
				report.Errors = append(report.Errors, &MissingDependencyError{From: t.ID, To: dep})
				continue
			}
			adj[t.ID] = append(adj[t.ID], dep)
		}
	}

	// Cycle check over the deduped edges. A gray node revisited on the
	// current path signals a cycle.
	colors := make(map[string]color, len(known))
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range adj[id] {
			switch colors[dep] {
			case gray:
				report.Errors = append(report.Errors, &CircularDependencyError{To: dep})
				return false
			case white:
				if !visit(dep) {
					return false
				}
			}
		}
		colors[id] = black
		return true
	}

	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic traversal and error order

	for _, id := range ids {
		if colors[id] == white {
			if !visit(id) {
				break
			}
		}
	}

	// Orphans: no dependencies and no dependents. Informational only.
	hasDependent := make(map[string]bool)
	for _, deps := range adj {
		for _, dep := range deps {
			hasDependent[dep] = true
		}
	}
	for _, id := range ids {
		if len(adj[id]) == 0 && !hasDependent[id] && len(known) > 1 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("task %q has no dependencies and no dependents", id))
		}
	}

	report.Valid = len(report.Errors) == 0
	return report
}

// ValidateNewDependency checks a single proposed edge against an
// already-built graph: self-reference, missing target, and reachability-based
// cycle detection.
func ValidateNewDependency(from, to string, g *Graph) error {
	if err := CheckID(from); err != nil {
		return err
	}
	if err := CheckID(to); err != nil {
		return err
	}
	if from == to {
		return &SelfDependencyError{ID: from}
	}
	if !g.HasNode(to) {
		return &MissingDependencyError{From: from, To: to}
	}
	if g.Reachable(to, from) {
		return &CircularDependencyError{From: from, To: to}
	}
	return nil
}

// Build constructs a validated Graph from a task set. The set must pass
// ValidateTaskGraph first; Build re-checks edges defensively and returns the
// first structural error it hits.
func Build(tasks []*task.Node) (*Graph, error) {
	g := New()
	for _, t := range tasks {
		if err := g.AddNode(t.ID); err != nil {
			return nil, err
		}
	}
	for _, t := range tasks {
		seen := make(map[string]struct{}, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			if err := g.AddDependency(t.ID, dep); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
