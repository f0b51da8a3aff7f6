package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workspace/agent-driver/internal/config"
	"github.com/workspace/agent-driver/internal/driver"
	"github.com/workspace/agent-driver/internal/output"
	"github.com/workspace/agent-driver/internal/shutdown"
)

// TestTranslateCancel verifies that the driver's cancellation error is mapped
// onto context.Canceled so the shutdown coordinator classifies it correctly,
// while other errors pass through unchanged.
func TestTranslateCancel(t *testing.T) {
	err := translateCancel(driver.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)

	plain := errors.New("something else")
	require.Equal(t, plain, translateCancel(plain))

	require.NoError(t, translateCancel(nil))
}

// TestExitErrorCarriesCode verifies that ExitError survives wrapping and
// preserves the exit code for main.
func TestExitErrorCarriesCode(t *testing.T) {
	err := error(&ExitError{Code: shutdown.ExitForced})

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, shutdown.ExitForced, exitErr.Code)
	require.Contains(t, err.Error(), "124")
}

// TestWriteFieldsToFile verifies that output fields land in the configured
// output file.
func TestWriteFieldsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	cfg := &config.Config{OutputPath: path}
	writer := output.NewWriter(nil)

	fields := output.Fields{
		SessionID:   "ses_1",
		LastMessage: "done",
		Conclusion:  output.ConclusionSuccess,
	}
	require.NoError(t, writeFields(cfg, writer, fields))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "ses_1")
	require.Contains(t, string(data), "conclusion")
	require.Contains(t, string(data), "success")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "multi line", truncate("multi\nline", 20))

	long := truncate("abcdefghijklmnop", 10)
	require.Len(t, long, 10)
	require.Equal(t, "abcdefg...", long)
}
