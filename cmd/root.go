// Package cmd defines the agent-driver CLI.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "agent-driver",
	Short:         "Drive an AI agent through prompt sessions",
	Long:          `agent-driver supervises an external AI-agent process: it starts the agent, runs prompt sessions against it while streaming output, auto-approves permission prompts, and tears everything down cleanly.`,
	Version:       "dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion overrides the version shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}
