// Package events defines the event protocol emitted by the agent process
// over its event feed. Events arrive as a JSON envelope with a type tag and
// a properties payload; this package decodes them into a closed set of
// variants so dispatch sites can type-switch exhaustively.
package events

import (
	"encoding/json"
	"fmt"
)

// Event tags as they appear on the wire.
const (
	TagSessionIdle        = "session.idle"
	TagSessionStatus      = "session.status"
	TagMessagePartUpdated = "message.part.updated"
	TagPermissionUpdated  = "permission.updated"
)

// Session status values carried by SessionStatus events.
const (
	StatusIdle         = "idle"
	StatusError        = "error"
	StatusDisconnected = "disconnected"
)

// Message part types carried by MessagePartUpdated events.
const (
	PartText = "text"
	PartTool = "tool"
)

// Event is the closed interface implemented by every event variant.
type Event interface {
	isEvent()
}

// SessionIdle signals that a session has finished producing output.
type SessionIdle struct {
	SessionID string `json:"sessionId"`
}

// SessionStatus reports a session status transition. Error carries the
// agent's error detail when Status is "error" or "disconnected".
type SessionStatus struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// MessagePartUpdated carries one streamed fragment of an in-progress
// message, either a text fragment or a tool status update.
type MessagePartUpdated struct {
	SessionID  string `json:"sessionId"`
	MessageID  string `json:"messageId"`
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Tool       string `json:"tool,omitempty"`
	ToolStatus string `json:"toolStatus,omitempty"`
}

// PermissionUpdated signals that a session is waiting on a permission
// decision.
type PermissionUpdated struct {
	SessionID    string `json:"sessionId"`
	PermissionID string `json:"permissionId"`
}

func (SessionIdle) isEvent()        {}
func (SessionStatus) isEvent()      {}
func (MessagePartUpdated) isEvent() {}
func (PermissionUpdated) isEvent()  {}

// envelope is the wire framing: {"type": "...", "properties": {...}}.
type envelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Decode parses one wire frame into its event variant. Unknown tags return
// (nil, nil) so consumers can skip event kinds added by newer agents.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event envelope missing type")
	}

	switch env.Type {
	case TagSessionIdle:
		var ev SessionIdle
		if err := json.Unmarshal(env.Properties, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case TagSessionStatus:
		var ev SessionStatus
		if err := json.Unmarshal(env.Properties, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case TagMessagePartUpdated:
		var ev MessagePartUpdated
		if err := json.Unmarshal(env.Properties, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	case TagPermissionUpdated:
		var ev PermissionUpdated
		if err := json.Unmarshal(env.Properties, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ev, nil
	default:
		return nil, nil
	}
}

// Encode frames an event variant for the wire. Used by the fake agent in
// tests and exposed so tools replaying transcripts share the framing.
func Encode(ev Event) ([]byte, error) {
	var tag string
	switch ev.(type) {
	case SessionIdle:
		tag = TagSessionIdle
	case SessionStatus:
		tag = TagSessionStatus
	case MessagePartUpdated:
		tag = TagMessagePartUpdated
	case PermissionUpdated:
		tag = TagPermissionUpdated
	default:
		return nil, fmt.Errorf("unknown event variant %T", ev)
	}

	props, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	return json.Marshal(envelope{Type: tag, Properties: props})
}
