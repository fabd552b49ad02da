package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldermoor/conductor/internal/task"
)

func TestProgressEmptySession(t *testing.T) {
	s := New("plan", nil, nil)
	p := s.Progress()

	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, p.Percent)
	assert.Empty(t, p.ByGroup)
	assert.Empty(t, p.ByTeam)
	assert.Zero(t, p.EstimatedRemaining)
}

func TestProgressCounts(t *testing.T) {
	nodes := []*task.Node{
		{ID: "a", Status: task.StatusCompleted, Group: "auth", Team: task.TeamBackend, Estimate: time.Hour},
		{ID: "b", Status: task.StatusRunning, Group: "auth", Team: task.TeamBackend, Estimate: 30 * time.Minute},
		{ID: "c", Status: task.StatusFailed, Group: "ui", Team: task.TeamFrontend, Estimate: 15 * time.Minute},
		{ID: "d", Status: task.StatusBlocked, Team: task.TeamFrontend},
		{ID: "e", Status: task.StatusPending},
		{ID: "f", Status: task.StatusReady},
	}
	s := New("plan", nodes, nil)
	p := s.Progress()

	assert.Equal(t, 6, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.InProgress)
	assert.Equal(t, 2, p.Blocked, "failed and blocked both count as blocked")
	assert.Equal(t, 17, p.Percent, "1/6 rounds to 17")

	// Completed tasks drop out of the remaining-time estimate.
	assert.Equal(t, 45*time.Minute, p.EstimatedRemaining)

	require.Contains(t, p.ByGroup, "auth")
	assert.Equal(t, GroupProgress{Total: 2, Completed: 1}, p.ByGroup["auth"])
	assert.Equal(t, GroupProgress{Total: 1, Completed: 0}, p.ByGroup["ui"])

	assert.Equal(t, GroupProgress{Total: 2, Completed: 1}, p.ByTeam[task.TeamBackend])
	assert.Equal(t, GroupProgress{Total: 2, Completed: 0}, p.ByTeam[task.TeamFrontend])
}

func TestProgressPercentRounding(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{"one third", 1, 3, 33},
		{"two thirds", 2, 3, 67},
		{"half", 1, 2, 50},
		{"all done", 4, 4, 100},
		{"none done", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nodes []*task.Node
			for i := 0; i < tt.total; i++ {
				st := task.StatusPending
				if i < tt.completed {
					st = task.StatusCompleted
				}
				nodes = append(nodes, &task.Node{ID: string(rune('a' + i)), Status: st})
			}
			p := New("plan", nodes, nil).Progress()
			assert.Equal(t, tt.want, p.Percent)
		})
	}
}

func TestProgressTracksSessionLocalStatuses(t *testing.T) {
	s := New("plan", []*task.Node{
		{ID: "a", Status: task.StatusReady},
		{ID: "b", Status: task.StatusPending},
	}, nil)
	require.NoError(t, s.StartExecution())
	require.NoError(t, s.UpdateTaskStatus("a", task.StatusCompleted))

	p := s.Progress()
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 50, p.Percent)
}
