package session

import (
	"math"
	"time"

	"github.com/aldermoor/conductor/internal/task"
)

// GroupProgress aggregates counts for one feature group or one team.
type GroupProgress struct {
	Total     int
	Completed int
}

// Progress is a point-in-time aggregation over a session's tracked tasks.
type Progress struct {
	Total      int
	Completed  int
	InProgress int
	Blocked    int

	// Percent is round(completed/total*100); 0 when the session is empty.
	Percent int

	ByGroup map[string]GroupProgress
	ByTeam  map[task.Team]GroupProgress

	// EstimatedRemaining sums the estimates of every incomplete task.
	EstimatedRemaining time.Duration
}

// Progress computes the aggregation. Pure read: safe at any time, including
// mid-transition.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		ByGroup: make(map[string]GroupProgress),
		ByTeam:  make(map[task.Team]GroupProgress),
	}

	for id, st := range s.statuses {
		t := s.tasks[id]
		p.Total++

		switch st {
		case task.StatusCompleted:
			p.Completed++
		case task.StatusRunning:
			p.InProgress++
		case task.StatusBlocked, task.StatusFailed:
			p.Blocked++
		}

		if st != task.StatusCompleted {
			p.EstimatedRemaining += t.Estimate
		}

		if t.Group != "" {
			g := p.ByGroup[t.Group]
			g.Total++
			if st == task.StatusCompleted {
				g.Completed++
			}
			p.ByGroup[t.Group] = g
		}
		if t.Team != "" {
			g := p.ByTeam[t.Team]
			g.Total++
			if st == task.StatusCompleted {
				g.Completed++
			}
			p.ByTeam[t.Team] = g
		}
	}

	if p.Total > 0 {
		p.Percent = int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
	}
	return p
}
