package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(nil)

	err := w.Write(&buf, Fields{
		SessionID:   "ses_1",
		LastMessage: "All done.",
		Conclusion:  ConclusionSuccess,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"session_id<<AGENT_DRIVER_EOF\nses_1\nAGENT_DRIVER_EOF\n",
		"last_message<<AGENT_DRIVER_EOF\nAll done.\nAGENT_DRIVER_EOF\n",
		"conclusion<<AGENT_DRIVER_EOF\nsuccess\nAGENT_DRIVER_EOF\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWritePreservesMultilineMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(nil)

	err := w.Write(&buf, Fields{
		SessionID:   "ses_1",
		LastMessage: "line one\nline two",
		Conclusion:  ConclusionFailure,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "line one\nline two\nAGENT_DRIVER_EOF") {
		t.Errorf("multi-line message mangled:\n%s", buf.String())
	}
}

func TestMaskHidesSecrets(t *testing.T) {
	w := NewWriter([]string{"s3cret", "t0ken"})

	got := w.Mask("the key is s3cret and the token is t0ken, not s3cret2")
	if strings.Contains(got, "s3cret") || strings.Contains(got, "t0ken") {
		t.Fatalf("secret leaked: %q", got)
	}
	if got != "the key is *** and the token is ***, not ***2" {
		t.Errorf("unexpected masked value: %q", got)
	}
}

func TestMaskIgnoresEmptyValues(t *testing.T) {
	w := NewWriter([]string{""})
	if got := w.Mask("unchanged"); got != "unchanged" {
		t.Errorf("empty mask value corrupted output: %q", got)
	}
}

func TestDelimiterAvoidsCollision(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(nil)

	err := w.Write(&buf, Fields{
		SessionID:   "ses_1",
		LastMessage: "contains AGENT_DRIVER_EOF inside",
		Conclusion:  ConclusionSuccess,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "last_message<<AGENT_DRIVER_EOF_X\n") {
		t.Errorf("delimiter collision not avoided:\n%s", buf.String())
	}
}
