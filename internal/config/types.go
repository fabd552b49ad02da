package config

import "time"

// WorkerConfig defines the external agent CLI a team dispatches to.
type WorkerConfig struct {
	Command string   `json:"command"`        // agent binary (e.g. "claude", "codex", "goose")
	Args    []string `json:"args,omitempty"` // args prepended to every invocation
	WorkDir string   `json:"work_dir,omitempty"`
}

// VerificationConfig tunes the verification gate.
type VerificationConfig struct {
	// StabilityDelay is how long the file system must stay quiet before a
	// queued verification runs (duration string, e.g. "60s").
	StabilityDelay string `json:"stability_delay,omitempty"`

	// MaxRetries bounds failed verification attempts per task.
	MaxRetries int `json:"max_retries,omitempty"`

	// Command is the check command a verification run executes.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// StabilityDelayDuration parses StabilityDelay, falling back to the default.
func (c VerificationConfig) StabilityDelayDuration() time.Duration {
	if c.StabilityDelay == "" {
		return 0
	}
	d, err := time.ParseDuration(c.StabilityDelay)
	if err != nil {
		return 0
	}
	return d
}

// RunnerConfig tunes the coordination loop.
type RunnerConfig struct {
	Concurrency int `json:"concurrency,omitempty"` // max concurrent worker dispatches
}

// WatchConfig tunes the file watcher feeding the gate.
type WatchConfig struct {
	Enabled     bool     `json:"enabled"`
	Root        string   `json:"root,omitempty"`
	ExcludeDirs []string `json:"exclude_dirs,omitempty"`
}

// Config is the top-level coordinator configuration.
type Config struct {
	Teams        map[string]WorkerConfig `json:"teams"`
	Verification VerificationConfig      `json:"verification"`
	Runner       RunnerConfig            `json:"runner"`
	Watch        WatchConfig             `json:"watch"`
}
