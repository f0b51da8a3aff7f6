package driver

import "log/slog"

// Observer receives streamed session output as it arrives. Implementations
// must not block: they are called on the event-dispatch path.
type Observer interface {
	// OnText is called for each accepted text fragment, in arrival order.
	OnText(sessionID, text string)
	// OnTool is called for each tool status update.
	OnTool(sessionID, tool, status string)
}

// slogObserver is the default observer: fragments go to the structured log.
type slogObserver struct{}

func (slogObserver) OnText(sessionID, text string) {
	slog.Info("Session output", "sessionID", sessionID, "text", text)
}

func (slogObserver) OnTool(sessionID, tool, status string) {
	slog.Info("Session tool", "sessionID", sessionID, "tool", tool, "status", status)
}

// session is the per-session accumulation state. It lives in the instance's
// session map and is mutated only on the event-dispatch path (under the
// instance's session lock for reads from RunSession/SendFollowUp).
type session struct {
	id string

	// buf accumulates text fragments of the in-flight message.
	buf []byte
	// currentMessageID is the message the buffer is accumulating; empty
	// until the first fragment of a message arrives.
	currentMessageID string
	// lastMessage is the buffer snapshot taken at completion.
	lastMessage string
}

// beginMessage clears the accumulation state ahead of a new prompt so the
// next message's fragments start a fresh buffer.
func (s *session) beginMessage() {
	s.buf = s.buf[:0]
	s.currentMessageID = ""
}

// appendFragment applies one text fragment. Fragments whose message id does
// not match the current one belong to a superseded message and are
// discarded. Returns whether the fragment was appended.
func (s *session) appendFragment(messageID, text string) bool {
	if s.currentMessageID == "" {
		s.currentMessageID = messageID
	} else if s.currentMessageID != messageID {
		return false
	}
	s.buf = append(s.buf, text...)
	return true
}

// snapshot records the buffer contents as the last complete message.
func (s *session) snapshot() {
	s.lastMessage = string(s.buf)
}
