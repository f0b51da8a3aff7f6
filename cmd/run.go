package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/workspace/agent-driver/internal/config"
	"github.com/workspace/agent-driver/internal/driver"
	"github.com/workspace/agent-driver/internal/logging"
	"github.com/workspace/agent-driver/internal/output"
	"github.com/workspace/agent-driver/internal/scriptrunner"
	"github.com/workspace/agent-driver/internal/shutdown"
)

var runOpts struct {
	prompt    string
	followUps []string
	timeout   string
	script    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a prompt session against the agent",
	RunE:  runSession,
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.prompt, "prompt", "p", "", "prompt to send to the agent (required)")
	runCmd.Flags().StringArrayVar(&runOpts.followUps, "follow-up", nil, "follow-up message sent after the previous one settles (repeatable)")
	runCmd.Flags().StringVar(&runOpts.timeout, "timeout", "", "per-message completion timeout (overrides SESSION_TIMEOUT)")
	runCmd.Flags().StringVar(&runOpts.script, "script", "", "workspace-relative validation script run after the session (overrides VALIDATION_SCRIPT)")
	_ = runCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(runCmd)
}

func runSession(_ *cobra.Command, _ []string) error {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if runOpts.timeout != "" {
		d, err := time.ParseDuration(runOpts.timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", runOpts.timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid --timeout %q: must be positive", runOpts.timeout)
		}
		cfg.SessionTimeout = d
	}
	if runOpts.script != "" {
		cfg.ValidationScript = runOpts.script
	}

	writer := output.NewWriter(cfg.MaskValues())
	manager := driver.NewManager(cfg, &streamObserver{writer: writer})

	fields := output.Fields{Conclusion: output.ConclusionFailure}
	coord := shutdown.New(cfg.ShutdownGrace)
	code := coord.Run(func(ctx context.Context) error {
		return executeRun(ctx, cfg, manager, &fields)
	})

	switch code {
	case shutdown.ExitOK:
		fields.Conclusion = output.ConclusionSuccess
	case shutdown.ExitCancelled:
		fields.Conclusion = output.ConclusionCancelled
	}

	if err := writeFields(cfg, writer, fields); err != nil {
		slog.Error("Failed to write output fields", "error", err)
		if code == shutdown.ExitOK {
			code = shutdown.ExitFailure
		}
	}

	if code != shutdown.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

// executeRun acquires the shared instance, runs the prompt and follow-ups,
// then the validation script. The instance is always torn down, including
// under cancellation.
func executeRun(ctx context.Context, cfg *config.Config, manager *driver.Manager, fields *output.Fields) error {
	instance, err := manager.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire driver instance: %w", err)
	}
	defer func() {
		if err := manager.Reset(); err != nil {
			slog.Warn("Instance teardown reported an error", "error", err)
		}
	}()

	result, err := instance.RunSession(ctx, runOpts.prompt, cfg.SessionTimeout)
	fields.SessionID = result.SessionID
	fields.LastMessage = result.LastMessage
	if err != nil {
		return translateCancel(err)
	}

	for _, followUp := range runOpts.followUps {
		last, err := instance.SendFollowUp(ctx, result.SessionID, followUp, cfg.SessionTimeout)
		if err != nil {
			return translateCancel(err)
		}
		fields.LastMessage = last
	}

	if cfg.ValidationScript != "" {
		runner := scriptrunner.New(cfg.WorkspaceDir)
		if _, err := runner.Run(ctx, cfg.ValidationScript, cfg.ScriptTimeout); err != nil {
			return translateCancel(err)
		}
	}
	return nil
}

// translateCancel maps the driver's cancellation error onto
// context.Canceled so the shutdown coordinator reports "cancelled" rather
// than "failed".
func translateCancel(err error) error {
	if errors.Is(err, driver.ErrCancelled) {
		return fmt.Errorf("%v: %w", err, context.Canceled)
	}
	return err
}

// writeFields renders the output fields to DRIVER_OUTPUT or stdout.
func writeFields(cfg *config.Config, writer *output.Writer, fields output.Fields) error {
	if cfg.OutputPath == "" {
		return writer.Write(os.Stdout, fields)
	}
	f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()
	return writer.Write(f, fields)
}

// streamObserver surfaces session output on stdout as it streams in, with
// secrets masked.
type streamObserver struct {
	writer *output.Writer
}

func (o *streamObserver) OnText(_, text string) {
	fmt.Print(o.writer.Mask(text))
}

func (o *streamObserver) OnTool(_, tool, status string) {
	fmt.Printf("\n[tool %s: %s]\n", tool, status)
}
