package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: test-key\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("api key = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Defaults.MaxAgents != 3 {
		t.Errorf("max agents = %d, want default 3", cfg.Defaults.MaxAgents)
	}
	if cfg.Defaults.TimeoutSeconds != 300 {
		t.Errorf("timeout = %d, want default 300", cfg.Defaults.TimeoutSeconds)
	}
	if cfg.Defaults.TokenBudget != 100000 {
		t.Errorf("token budget = %d, want default 100000", cfg.Defaults.TokenBudget)
	}
	if cfg.Defaults.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %s, want 250ms", cfg.Defaults.PollInterval)
	}
	if cfg.Workspace.Dir != ".overseer" {
		t.Errorf("workspace dir = %q", cfg.Workspace.Dir)
	}
}

func TestLoadFromPathOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `defaults:
  max_agents: 7
  timeout_seconds: 60
  token_budget: 5000
workspace:
  dir: /tmp/overseer-ws
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Defaults.MaxAgents != 7 || cfg.Defaults.TimeoutSeconds != 60 || cfg.Defaults.TokenBudget != 5000 {
		t.Errorf("overrides not applied: %+v", cfg.Defaults)
	}
	if got := cfg.BlackboardPath(); got != "/tmp/overseer-ws/blackboard.json" {
		t.Errorf("blackboard path = %q", got)
	}
	if got := cfg.StatePath(); got != "/tmp/overseer-ws/state.db" {
		t.Errorf("state path = %q", got)
	}
}

func TestLoadFromPathExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("OVERSEER_TEST_KEY", "expanded-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: ${OVERSEER_TEST_KEY}\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-secret" {
		t.Errorf("api key = %q, want expanded-secret", cfg.Anthropic.APIKey)
	}
}
