package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config defines a CLI worker: the agent command invoked once per assignment.
type Config struct {
	Command string   // agent binary (e.g. "claude", "codex", "goose")
	Args    []string // args prepended before the prompt
	WorkDir string   // defaults to the current directory
}

// CLIWorker dispatches assignments to an external coding-agent CLI, one
// subprocess per assignment.
type CLIWorker struct {
	cfg     Config
	procMgr *ProcessManager
}

// cliResult is the optional structured output an agent may print. Plain-text
// output is accepted as-is.
type cliResult struct {
	Output        string   `json:"output"`
	ModifiedFiles []string `json:"modified_files"`
}

// NewCLIWorker creates a CLI worker. The ProcessManager is optional; when
// nil, subprocesses are not tracked for shutdown.
func NewCLIWorker(cfg Config, procMgr *ProcessManager) (*CLIWorker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("worker command is required")
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}
	return &CLIWorker{cfg: cfg, procMgr: procMgr}, nil
}

// Execute runs the agent command with a prompt assembled from the task and
// its context bundle.
func (w *CLIWorker) Execute(ctx context.Context, a Assignment) (Outcome, error) {
	args := append(append([]string(nil), w.cfg.Args...), buildPrompt(a))

	cmd := newCommand(ctx, w.cfg.Command, args...)
	cmd.Dir = w.cfg.WorkDir

	stdout, stderr, err := runCommand(cmd, w.procMgr)
	if err != nil {
		return Outcome{TaskID: a.Task.ID}, fmt.Errorf("worker command failed for task %q: %w (stderr: %s)",
			a.Task.ID, err, strings.TrimSpace(string(stderr)))
	}

	outcome := Outcome{TaskID: a.Task.ID}

	// Agents that emit structured JSON get their file list honored; anything
	// else falls back to raw output plus the task's own metadata files.
	var res cliResult
	if jsonErr := json.Unmarshal(stdout, &res); jsonErr == nil && res.Output != "" {
		outcome.Output = res.Output
		outcome.ModifiedFiles = res.ModifiedFiles
	} else {
		outcome.Output = string(stdout)
	}
	if len(outcome.ModifiedFiles) == 0 {
		outcome.ModifiedFiles = a.Task.Files()
	}
	return outcome, nil
}

// Close is a no-op: the CLI worker is subprocess-per-assignment.
func (w *CLIWorker) Close() error {
	return nil
}

// buildPrompt renders the assignment into a single prompt string.
func buildPrompt(a Assignment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n", a.Task.ID, a.Task.Description)
	if len(a.ContextFiles) > 0 {
		b.WriteString("Context:\n")
		for _, f := range a.ContextFiles {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	return b.String()
}

var _ Worker = (*CLIWorker)(nil)
