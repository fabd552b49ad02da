// Package plan loads planner output: a JSON task breakdown that is validated
// as a dependency graph before a session is created from it.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aldermoor/conductor/internal/graph"
	"github.com/aldermoor/conductor/internal/task"
)

// Task is one planner-produced work item.
type Task struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Team        string         `json:"team,omitempty"`
	Group       string         `json:"group,omitempty"`
	Estimate    string         `json:"estimate,omitempty"` // e.g. "30m"
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Plan is the planner's full output for one goal.
type Plan struct {
	ID    string `json:"id"`
	Goal  string `json:"goal"`
	Tasks []Task `json:"tasks"`
}

// Load reads and validates a plan file. Validation warnings are returned
// alongside the plan; validation errors fail the load.
func Load(path string) (*Plan, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading plan %s: %w", path, err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if len(p.Tasks) == 0 {
		return nil, nil, fmt.Errorf("plan %s contains no tasks", path)
	}

	nodes := p.Nodes()
	report := graph.ValidateTaskGraph(nodes)
	if !report.Valid {
		return nil, report.Warnings, fmt.Errorf("invalid plan %s: %w", path, errors.Join(report.Errors...))
	}
	return &p, report.Warnings, nil
}

// Nodes converts the breakdown into task nodes. Unset priorities get the
// default baseline; unparseable estimates are ignored.
func (p *Plan) Nodes() []*task.Node {
	nodes := make([]*task.Node, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		n := &task.Node{
			ID:          t.ID,
			Description: t.Description,
			DependsOn:   append([]string(nil), t.DependsOn...),
			Priority:    t.Priority,
			Status:      task.StatusPending,
			Team:        task.Team(t.Team),
			Group:       t.Group,
			Metadata:    t.Metadata,
		}
		if n.Priority == 0 {
			n.Priority = task.DefaultPriority
		}
		if t.Estimate != "" {
			if d, err := time.ParseDuration(t.Estimate); err == nil {
				n.Estimate = d
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}
