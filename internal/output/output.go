// Package output turns a run outcome into the driver's final output
// fields. Fields are written in key<<EOF heredoc format so multi-line
// messages survive, and configured secret values are masked first.
package output

import (
	"fmt"
	"io"
	"strings"
)

// maskReplacement is substituted for every masked value occurrence.
const maskReplacement = "***"

// Fields is the final result surface of one driver run.
type Fields struct {
	SessionID   string
	LastMessage string
	Conclusion  string // success, failure, or cancelled
}

// Conclusion values.
const (
	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionCancelled = "cancelled"
)

// Writer renders output fields with secret masking.
type Writer struct {
	maskValues []string
}

// NewWriter creates a Writer that masks every occurrence of the given
// values. Empty values are ignored.
func NewWriter(maskValues []string) *Writer {
	var kept []string
	for _, v := range maskValues {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return &Writer{maskValues: kept}
}

// Mask replaces every masked value in s.
func (w *Writer) Mask(s string) string {
	for _, v := range w.maskValues {
		s = strings.ReplaceAll(s, v, maskReplacement)
	}
	return s
}

// Write renders the fields to out, one per line, using heredoc framing for
// values so embedded newlines are preserved:
//
//	session_id<<AGENT_DRIVER_EOF
//	ses_123
//	AGENT_DRIVER_EOF
func (w *Writer) Write(out io.Writer, f Fields) error {
	fields := []struct {
		key   string
		value string
	}{
		{"session_id", f.SessionID},
		{"last_message", w.Mask(f.LastMessage)},
		{"conclusion", f.Conclusion},
	}

	for _, field := range fields {
		delim := delimiterFor(field.value)
		if _, err := fmt.Fprintf(out, "%s<<%s\n%s\n%s\n", field.key, delim, field.value, delim); err != nil {
			return fmt.Errorf("write output field %s: %w", field.key, err)
		}
	}
	return nil
}

// delimiterFor picks a heredoc delimiter not present in the value.
func delimiterFor(value string) string {
	delim := "AGENT_DRIVER_EOF"
	for strings.Contains(value, delim) {
		delim += "_X"
	}
	return delim
}
