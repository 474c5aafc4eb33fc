package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDecodesNestedDefaults(t *testing.T) {
	path := writeTempConfig(t, `
session:
  max_agents: 5
  auto_checkpoint: true
  checkpoint_interval: 30s
pool:
  min_workers: 2
  max_workers: 8
  strategy: least_loaded
router:
  default_provider: openai
  fallbacks: [anthropic, ollama]
  cost_mode: cost
`)

	defaults, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if defaults.Session.MaxAgents != 5 {
		t.Fatalf("expected max_agents 5, got %d", defaults.Session.MaxAgents)
	}
	if !defaults.Session.AutoCheckpoint {
		t.Fatal("expected auto_checkpoint true")
	}
	interval, err := ParseDuration(defaults.Session.CheckpointInterval)
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if interval.Seconds() != 30 {
		t.Fatalf("expected 30s interval, got %v", interval)
	}
	if defaults.Pool.MinWorkers != 2 || defaults.Pool.MaxWorkers != 8 {
		t.Fatalf("unexpected pool defaults: %+v", defaults.Pool)
	}
	if len(defaults.Router.Fallbacks) != 2 || defaults.Router.Fallbacks[0] != "anthropic" {
		t.Fatalf("unexpected fallbacks: %+v", defaults.Router.Fallbacks)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("COORDINATOR_DEFAULT_PROVIDER", "anthropic")
	path := writeTempConfig(t, `
router:
  default_provider: ${COORDINATOR_DEFAULT_PROVIDER}
  cost_mode: ${MISSING_VAR:-quality}
`)

	defaults, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if defaults.Router.DefaultProvider != "anthropic" {
		t.Fatalf("expected expanded env var, got %q", defaults.Router.DefaultProvider)
	}
	if defaults.Router.CostMode != "quality" {
		t.Fatalf("expected fallback default, got %q", defaults.Router.CostMode)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent file")
	}
}
