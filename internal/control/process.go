// Package control spawns the external agent process and talks to its
// control channel: HTTP calls for session operations and a WebSocket feed
// for events.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/workspace/agent-driver/internal/retry"
)

// stopGracePeriod is how long Stop waits after SIGTERM before killing.
const stopGracePeriod = 5 * time.Second

// AgentProcess manages the external agent server subprocess. The process
// serves the control channel on a loopback port for its whole lifetime.
type AgentProcess struct {
	command   string
	cmd       *exec.Cmd
	stderr    io.ReadCloser
	startTime time.Time

	mu      sync.Mutex
	stopped bool
}

// ProcessConfig holds configuration for spawning the agent process.
type ProcessConfig struct {
	// Command is the agent binary name (e.g., "opencode").
	Command string
	// Args are additional CLI arguments placed before the serve flags.
	Args []string
	// Host and Port are where the agent is told to serve its control channel.
	Host string
	Port int
	// WorkDir is the working directory for the process.
	WorkDir string
	// Env is the environment for the process; nil inherits the parent's.
	Env []string
}

// StartProcess spawns the agent server. It does not wait for the control
// channel to come up; use Client.WaitReady for that.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*AgentProcess, error) {
	args := append([]string{}, cfg.Args...)
	args = append(args, "serve", "--hostname", cfg.Host, "--port", strconv.Itoa(cfg.Port))

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.Env
	// Give the agent its own process group so Stop can take down children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGracePeriod

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	slog.Info("Agent process started",
		"command", cfg.Command, "pid", cmd.Process.Pid, "port", cfg.Port)

	p := &AgentProcess{
		command:   cfg.Command,
		cmd:       cmd,
		stderr:    stderr,
		startTime: time.Now(),
	}
	go p.drainStderr()
	return p, nil
}

// drainStderr forwards agent stderr lines to the logger so agent-side
// failures show up in driver logs.
func (p *AgentProcess) drainStderr() {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Debug("Agent stderr", "command", p.command, "line", scanner.Text())
	}
}

// Pid returns the process id of the agent.
func (p *AgentProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Stop terminates the agent: SIGTERM to the process group, then SIGKILL
// after a grace period. It is idempotent.
func (p *AgentProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	slog.Info("Stopping agent process", "command", p.command, "pid", p.cmd.Process.Pid)

	// Negative pid signals the whole process group.
	_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		slog.Warn("Agent process did not exit after SIGTERM, killing", "pid", p.cmd.Process.Pid)
		_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		<-done
	}
	return nil
}

// WaitReady probes the agent's health endpoint until it responds or the
// attempt budget is exhausted.
func (c *Client) WaitReady(ctx context.Context, cfg retry.Config) error {
	return retry.Do(ctx, cfg, "agent-ready", func(ctx context.Context) error {
		return c.Health(ctx)
	})
}
