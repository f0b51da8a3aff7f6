// Package scriptrunner executes the workspace validation script after a
// session completes. The script runs under a PTY so tools that check for a
// terminal keep their full output.
package scriptrunner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Result holds the outcome of one script run.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Runner executes validation scripts rooted at a workspace directory.
type Runner struct {
	workspaceDir string
}

// New creates a Runner for the given workspace directory.
func New(workspaceDir string) *Runner {
	return &Runner{workspaceDir: workspaceDir}
}

// ValidatePath checks that script is a workspace-relative path: non-empty,
// not absolute, and not escaping the workspace via "..". Returns the
// resolved absolute path.
func (r *Runner) ValidatePath(script string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("script path is empty")
	}
	if filepath.IsAbs(script) {
		return "", fmt.Errorf("script path must be workspace-relative: %s", script)
	}

	cleaned := filepath.Clean(script)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("script path escapes the workspace: %s", script)
	}
	return filepath.Join(r.workspaceDir, cleaned), nil
}

// Run validates the script path and executes it under a PTY, streaming
// output lines to the logger. The process group is killed when ctx is
// cancelled or the timeout elapses.
func (r *Runner) Run(ctx context.Context, script string, timeout time.Duration) (Result, error) {
	path, err := r.ValidatePath(script)
	if err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("script not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(path)
	cmd.Dir = r.workspaceDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	start := time.Now()
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return Result{}, fmt.Errorf("start script: %w", err)
	}
	defer ptmx.Close()

	slog.Info("Script: started", "script", script, "pid", cmd.Process.Pid)

	// Kill the whole process group when the context fires.
	stop := context.AfterFunc(ctx, func() {
		slog.Warn("Script: killing after cancellation or timeout", "script", script)
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	})
	defer stop()

	r.streamOutput(ptmx, script)

	err = cmd.Wait()
	result := Result{Duration: time.Since(start)}

	if ctx.Err() != nil {
		return result, fmt.Errorf("script %s: %w", script, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("script %s exited with code %d", script, result.ExitCode)
		}
		return result, fmt.Errorf("script %s: %w", script, err)
	}

	slog.Info("Script: completed", "script", script, "duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// streamOutput forwards PTY output lines to the logger until the script
// exits. PTY reads end with EIO when the child closes the slave side.
func (r *Runner) streamOutput(ptmx io.Reader, script string) {
	scanner := bufio.NewScanner(ptmx)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Info("Script output", "script", script, "line", scanner.Text())
	}
}
