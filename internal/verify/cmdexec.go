package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aldermoor/conductor/internal/worker"
)

// CommandExecutor verifies tasks by running a configured check command (a
// test suite, a linter pipeline) and mapping its exit status to a Result.
// Richer executors - LLM criteria checkers - implement Executor themselves.
type CommandExecutor struct {
	Command string
	Args    []string
	Dir     string
	ProcMgr *worker.ProcessManager
}

// Execute runs the check command once. A zero exit passes; anything else
// fails with the trailing stderr lines as the failure list.
func (e *CommandExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if e.Command == "" {
		return nil, fmt.Errorf("verification command not configured")
	}

	res := &Result{TaskID: req.TaskID, Coverage: -1}

	_, stderr, err := worker.RunCommand(ctx, e.ProcMgr, e.Dir, e.Command, e.Args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Passed = false
		res.Failures = tailLines(string(stderr), 20)
		if len(res.Failures) == 0 {
			res.Failures = []string{err.Error()}
		}
	} else {
		res.Passed = true
	}

	for _, c := range req.AcceptanceCriteria {
		res.Criteria = append(res.Criteria, CriterionResult{
			Criterion: c,
			Passed:    res.Passed,
			Evidence:  fmt.Sprintf("check command %q", e.Command),
		})
	}
	return res, nil
}

// tailLines returns up to n trailing non-empty lines of s.
func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, n)
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var _ Executor = (*CommandExecutor)(nil)
