// Package config provides configuration loading for the agent driver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the agent driver.
type Config struct {
	// Agent process settings
	AgentCommand string
	AgentArgs    []string
	AgentPort    int
	AgentHost    string

	// Session settings
	SessionTimeout time.Duration

	// Readiness probing of the agent control channel
	ReadyInterval time.Duration
	ReadyAttempts int

	// Workspace settings
	WorkspaceDir     string
	ValidationScript string
	ScriptTimeout    time.Duration

	// Shutdown settings
	ShutdownGrace time.Duration

	// Transcript store
	TranscriptPath string

	// Output settings
	OutputPath string
	MaskEnv    []string
}

// Load reads configuration from environment variables and validates ranges.
func Load() (*Config, error) {
	workDir := getEnv("DRIVER_WORKSPACE_DIR", "")
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workDir = wd
	}

	cfg := &Config{
		AgentCommand: getEnv("AGENT_COMMAND", "opencode"),
		AgentArgs:    getEnvStringSlice("AGENT_ARGS", nil),
		AgentPort:    getEnvInt("AGENT_PORT", 4096),
		AgentHost:    getEnv("AGENT_HOST", "127.0.0.1"),

		SessionTimeout: getEnvDuration("SESSION_TIMEOUT", 30*time.Minute),

		ReadyInterval: getEnvDuration("AGENT_READY_INTERVAL", 500*time.Millisecond),
		ReadyAttempts: getEnvInt("AGENT_READY_ATTEMPTS", 40),

		WorkspaceDir:     workDir,
		ValidationScript: getEnv("VALIDATION_SCRIPT", ""),
		ScriptTimeout:    getEnvDuration("SCRIPT_TIMEOUT", 5*time.Minute),

		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),

		TranscriptPath: getEnv("TRANSCRIPT_DB", filepath.Join(workDir, ".agent-driver", "runs.db")),

		OutputPath: getEnv("DRIVER_OUTPUT", ""),
		MaskEnv:    getEnvStringSlice("DRIVER_MASK_ENV", nil),
	}

	if cfg.AgentCommand == "" {
		return nil, fmt.Errorf("AGENT_COMMAND must not be empty")
	}
	if cfg.AgentPort < 1 || cfg.AgentPort > 65535 {
		return nil, fmt.Errorf("AGENT_PORT out of range: %d", cfg.AgentPort)
	}
	if cfg.SessionTimeout <= 0 || cfg.SessionTimeout > 24*time.Hour {
		return nil, fmt.Errorf("SESSION_TIMEOUT out of range: %v", cfg.SessionTimeout)
	}
	if cfg.ReadyInterval <= 0 {
		return nil, fmt.Errorf("AGENT_READY_INTERVAL must be positive: %v", cfg.ReadyInterval)
	}
	if cfg.ReadyAttempts < 1 {
		return nil, fmt.Errorf("AGENT_READY_ATTEMPTS must be at least 1: %d", cfg.ReadyAttempts)
	}
	if cfg.ScriptTimeout <= 0 {
		return nil, fmt.Errorf("SCRIPT_TIMEOUT must be positive: %v", cfg.ScriptTimeout)
	}
	if cfg.ShutdownGrace <= 0 {
		return nil, fmt.Errorf("SHUTDOWN_GRACE must be positive: %v", cfg.ShutdownGrace)
	}

	return cfg, nil
}

// MaskValues resolves the configured mask environment variable names to
// their current non-empty values.
func (c *Config) MaskValues() []string {
	var values []string
	for _, name := range c.MaskEnv {
		if v := os.Getenv(name); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// BaseURL returns the loopback address of the agent control channel.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.AgentHost, c.AgentPort)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvStringSlice returns a slice from a comma-separated environment variable.
func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
