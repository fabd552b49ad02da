package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Precedence (highest first): project config, global config, defaults.
// Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}
	return cfg, nil
}

// LoadDefault loads configuration from the conventional paths.
// Global: ~/.conductor/config.json
// Project: .conductor/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".conductor", "config.json")
	projectPath := filepath.Join(".conductor", "config.json")
	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into base.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, team := range loaded.Teams {
		base.Teams[key] = team
	}
	if loaded.Verification.StabilityDelay != "" {
		base.Verification.StabilityDelay = loaded.Verification.StabilityDelay
	}
	if loaded.Verification.MaxRetries > 0 {
		base.Verification.MaxRetries = loaded.Verification.MaxRetries
	}
	if loaded.Verification.Command != "" {
		base.Verification.Command = loaded.Verification.Command
		base.Verification.Args = loaded.Verification.Args
	}
	if loaded.Runner.Concurrency > 0 {
		base.Runner.Concurrency = loaded.Runner.Concurrency
	}
	if loaded.Watch.Enabled {
		base.Watch = loaded.Watch
	}
	return nil
}
