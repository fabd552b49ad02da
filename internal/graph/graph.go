// Package graph implements the directed dependency graph over task ids:
// validated edge insertion, cycle detection, and topological ordering.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/gammazero/toposort"
)

// Graph is a directed graph over task identifiers. Nodes map to the set of
// ids they depend on. The graph is acyclic once validated; mutation goes
// through AddNode and AddDependency only.
type Graph struct {
	mu         sync.RWMutex
	deps       map[string]map[string]struct{} // node -> dependency ids
	dependents map[string][]string            // node -> ids that depend on it
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string][]string),
	}
}

// CheckID validates the task id format: non-empty, must not start with
// whitespace or '-'. Anything else is accepted.
func CheckID(id string) error {
	if id == "" {
		return &InvalidIDError{ID: id, Reason: "id is empty"}
	}
	first := []rune(id)[0]
	if unicode.IsSpace(first) {
		return &InvalidIDError{ID: id, Reason: "id starts with whitespace"}
	}
	if first == '-' {
		return &InvalidIDError{ID: id, Reason: "id starts with '-'"}
	}
	return nil
}

// AddNode registers a task id with no dependencies. Idempotent.
func (g *Graph) AddNode(id string) error {
	if err := CheckID(id); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.deps[id]; !exists {
		g.deps[id] = make(map[string]struct{})
	}
	return nil
}

// AddDependency records that from depends on to. Fails with
// *MissingDependencyError if to is unknown, *SelfDependencyError if
// from == to, and *CircularDependencyError if the edge would close a cycle.
func (g *Graph) AddDependency(from, to string) error {
	if from == to {
		return &SelfDependencyError{ID: from}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.deps[to]; !exists {
		return &MissingDependencyError{From: from, To: to}
	}
	if _, exists := g.deps[from]; !exists {
		if err := CheckID(from); err != nil {
			return err
		}
		g.deps[from] = make(map[string]struct{})
	}

	// The graph is acyclic going in, so a cycle through the new edge exists
	// exactly when from is reachable from to.
	if g.reachableLocked(to, from) {
		return &CircularDependencyError{From: from, To: to}
	}

	if _, dup := g.deps[from][to]; !dup {
		g.deps[from][to] = struct{}{}
		g.dependents[to] = append(g.dependents[to], from)
	}
	return nil
}

// HasNode reports whether the id is registered.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.deps[id]
	return ok
}

// Dependencies returns the dependency ids of a node, sorted.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.deps[id]))
	for dep := range g.deps[id] {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the ids that depend on the given node.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[id]...)
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.deps)
}

// Reachable reports whether target can be reached from start by following
// dependency edges.
func (g *Graph) Reachable(start, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachableLocked(start, target)
}

// reachableLocked is an iterative DFS over dependency edges.
// Callers must hold at least the read lock.
func (g *Graph) reachableLocked(start, target string) bool {
	visited := make(map[string]bool)
	stack := []string{start}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node == target {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true

		for dep := range g.deps[node] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// Order returns a topological ordering of all nodes (dependencies first)
// using gammazero/toposort. Returns an error if the graph contains a cycle.
func (g *Graph) Order() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []toposort.Edge
	for id, deps := range g.deps {
		if len(deps) == 0 {
			// Edge from nil keeps isolated nodes in the result.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for dep := range deps {
			// Edge (dep, id): dep must come before id.
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.deps) {
		missing := []string{}
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for id := range g.deps {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("topological sort lost %d nodes: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}
