package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/workspace/agent-driver/internal/config"
	"github.com/workspace/agent-driver/internal/logging"
	"github.com/workspace/agent-driver/internal/transcript"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded session runs, newest first",
	RunE:  listRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func listRuns(cmd *cobra.Command, _ []string) error {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	store, err := transcript.Open(cfg.TranscriptPath)
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	for _, run := range runs {
		cmd.Printf("%s  %-9s  session=%s\n", run.FinishedAt.Local().Format("2006-01-02 15:04:05"), run.Status, run.SessionID)
		cmd.Printf("  prompt: %s\n", truncate(run.Prompt, 96))
		if run.LastMessage != "" {
			cmd.Printf("  answer: %s\n", truncate(run.LastMessage, 96))
		}
	}
	return nil
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
