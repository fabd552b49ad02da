package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name string, cfg *Config) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Teams["backend"].Command != "claude" {
		t.Errorf("backend command = %q, want claude", cfg.Teams["backend"].Command)
	}
	if cfg.Verification.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Verification.MaxRetries)
	}
	if cfg.Runner.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Runner.Concurrency)
	}
	if cfg.Watch.Enabled {
		t.Error("watch should default to disabled")
	}
}

func TestLoadMissingFilesAreSkipped(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("Load failed on missing files: %v", err)
	}
	if cfg.Teams["testing"].Command != "codex" {
		t.Errorf("testing command = %q, want codex", cfg.Teams["testing"].Command)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path, ""); err == nil {
		t.Error("Load should fail on malformed JSON")
	}
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()

	globalPath := writeConfig(t, dir, "global.json", &Config{
		Teams: map[string]WorkerConfig{
			"backend": {Command: "global-agent"},
			"infra":   {Command: "terraform-agent"},
		},
		Verification: VerificationConfig{MaxRetries: 5},
	})
	projectPath := writeConfig(t, dir, "project.json", &Config{
		Teams: map[string]WorkerConfig{
			"backend": {Command: "project-agent", Args: []string{"--fast"}},
		},
		Verification: VerificationConfig{StabilityDelay: "5s"},
		Runner:       RunnerConfig{Concurrency: 8},
	})

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Project wins over global, global wins over defaults.
	if cfg.Teams["backend"].Command != "project-agent" {
		t.Errorf("backend command = %q, want project-agent", cfg.Teams["backend"].Command)
	}
	if cfg.Teams["infra"].Command != "terraform-agent" {
		t.Errorf("infra command = %q, want terraform-agent", cfg.Teams["infra"].Command)
	}
	if cfg.Teams["docs"].Command != "goose" {
		t.Errorf("docs command = %q, want the default goose", cfg.Teams["docs"].Command)
	}
	if cfg.Verification.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5 from global", cfg.Verification.MaxRetries)
	}
	if cfg.Verification.StabilityDelay != "5s" {
		t.Errorf("StabilityDelay = %q, want 5s from project", cfg.Verification.StabilityDelay)
	}
	if cfg.Runner.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8 from project", cfg.Runner.Concurrency)
	}
}

func TestLoadPartialOverridesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "partial.json", &Config{
		Runner: RunnerConfig{Concurrency: 2},
	})

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runner.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Runner.Concurrency)
	}
	if cfg.Verification.Command != "go" {
		t.Errorf("verification command = %q, want default go", cfg.Verification.Command)
	}
}

func TestStabilityDelayDuration(t *testing.T) {
	tests := []struct {
		name  string
		delay string
		want  time.Duration
	}{
		{"valid", "90s", 90 * time.Second},
		{"empty falls through", "", 0},
		{"garbage falls through", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := VerificationConfig{StabilityDelay: tt.delay}
			if got := c.StabilityDelayDuration(); got != tt.want {
				t.Errorf("StabilityDelayDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
