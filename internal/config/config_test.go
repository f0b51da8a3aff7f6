package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AgentCommand != "opencode" {
		t.Errorf("expected default agent command, got %q", cfg.AgentCommand)
	}
	if cfg.AgentPort != 4096 {
		t.Errorf("expected default port 4096, got %d", cfg.AgentPort)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("expected default session timeout, got %v", cfg.SessionTimeout)
	}
	if cfg.WorkspaceDir == "" {
		t.Error("expected workspace dir to default to cwd")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_COMMAND", "fake-agent")
	t.Setenv("AGENT_ARGS", "serve, --verbose")
	t.Setenv("AGENT_PORT", "9100")
	t.Setenv("SESSION_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AgentCommand != "fake-agent" {
		t.Errorf("expected override, got %q", cfg.AgentCommand)
	}
	if len(cfg.AgentArgs) != 2 || cfg.AgentArgs[0] != "serve" || cfg.AgentArgs[1] != "--verbose" {
		t.Errorf("unexpected args: %v", cfg.AgentArgs)
	}
	if cfg.AgentPort != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.AgentPort)
	}
	if cfg.SessionTimeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %v", cfg.SessionTimeout)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("AGENT_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestLoadRejectsBadSessionTimeout(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT", "-5s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative session timeout")
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT", "not-a-duration")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("expected default on parse failure, got %v", cfg.SessionTimeout)
	}
}

func TestMaskValues(t *testing.T) {
	t.Setenv("DRIVER_MASK_ENV", "SECRET_ONE,SECRET_TWO,SECRET_UNSET")
	t.Setenv("SECRET_ONE", "alpha")
	t.Setenv("SECRET_TWO", "beta")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values := cfg.MaskValues()
	if len(values) != 2 || values[0] != "alpha" || values[1] != "beta" {
		t.Errorf("unexpected mask values: %v", values)
	}
}

func TestBaseURL(t *testing.T) {
	t.Setenv("AGENT_HOST", "localhost")
	t.Setenv("AGENT_PORT", "5000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL() != "http://localhost:5000" {
		t.Errorf("unexpected base URL: %s", cfg.BaseURL())
	}
}
