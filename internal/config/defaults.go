package config

// DefaultConfig returns the built-in configuration: one agent CLI per team
// and conservative verification settings.
func DefaultConfig() *Config {
	return &Config{
		Teams: map[string]WorkerConfig{
			"backend": {
				Command: "claude",
				Args:    []string{"-p"},
			},
			"frontend": {
				Command: "claude",
				Args:    []string{"-p"},
			},
			"testing": {
				Command: "codex",
			},
			"docs": {
				Command: "goose",
			},
		},
		Verification: VerificationConfig{
			StabilityDelay: "60s",
			MaxRetries:     3,
			Command:        "go",
			Args:           []string{"test", "./..."},
		},
		Runner: RunnerConfig{
			Concurrency: 4,
		},
		Watch: WatchConfig{
			Enabled:     false,
			ExcludeDirs: []string{".git", "node_modules", "vendor"},
		},
	}
}
