/*
Package protocol defines the realtime presence wire format.

Every websocket frame is a JSON envelope {"type": <event>, "payload": {...}}.
Frames are decoded exactly once, at the transport boundary, into one of the
concrete Message types below; nothing downstream dispatches on event-name
strings.

	client -> hub   auth, cursor_move, node_select, workflow_update
	hub -> client   users, cursor_update, node_update, workflow_change
*/
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the "type" field of the envelope.
type EventType string

const (
	EventAuth           EventType = "auth"
	EventUsers          EventType = "users"
	EventCursorUpdate   EventType = "cursor_update"
	EventNodeUpdate     EventType = "node_update"
	EventWorkflowChange EventType = "workflow_change"
	EventCursorMove     EventType = "cursor_move"
	EventNodeSelect     EventType = "node_select"
	EventWorkflowUpdate EventType = "workflow_update"
)

// ErrMalformed wraps every decoding failure so callers can count and ignore it.
var ErrMalformed = errors.New("malformed presence frame")

// Envelope is the outer frame.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ID is an opaque identifier. The canvas host and the auth service emit both
// numeric and string ids; on the wire either form is accepted and it is
// always re-encoded as a string.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Message is the closed set of frames. Only types in this package implement it.
type Message interface {
	Event() EventType
	sealed()
}

// Auth is the handshake frame; it must be the first frame a client sends.
type Auth struct {
	Token string `json:"token"`
}

// RosterEntry describes one connected collaborator.
type RosterEntry struct {
	ID          ID     `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Roster is the full set of connected collaborators keyed by user id.
type Roster map[string]RosterEntry

// Cursor is the shared payload of cursor_move and cursor_update.
// Session and Seq are optional ordering hints, see Stamp.
type Cursor struct {
	UserID   ID      `json:"userId"`
	Username string  `json:"username"`
	Color    string  `json:"color"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Stamp
}

// Selection is the shared payload of node_select and node_update.
type Selection struct {
	UserID   ID     `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
	NodeIDs  []ID   `json:"nodeIds"`
	Stamp
}

// Workflow is the shared payload of workflow_update and workflow_change.
// WorkflowData is opaque to the presence layer.
type Workflow struct {
	UserID       ID              `json:"userId"`
	Username     string          `json:"username"`
	WorkflowData json.RawMessage `json:"workflowData,omitempty"`
}

// Stamp lets a receiver discard events that arrive out of order. Session is
// random per sending channel instance and Seq increases per event kind within
// that session. Both are omitted by peers that do not order their events.
type Stamp struct {
	Session string `json:"session,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
}

// Ordered reports whether the stamp carries ordering information.
func (s Stamp) Ordered() bool {
	return s.Session != "" && s.Seq > 0
}

type (
	Users          struct{ Roster Roster }
	CursorUpdate   struct{ Cursor }
	CursorMove     struct{ Cursor }
	NodeUpdate     struct{ Selection }
	NodeSelect     struct{ Selection }
	WorkflowChange struct{ Workflow }
	WorkflowUpdate struct{ Workflow }
)

func (Auth) Event() EventType           { return EventAuth }
func (Users) Event() EventType          { return EventUsers }
func (CursorUpdate) Event() EventType   { return EventCursorUpdate }
func (CursorMove) Event() EventType     { return EventCursorMove }
func (NodeUpdate) Event() EventType     { return EventNodeUpdate }
func (NodeSelect) Event() EventType     { return EventNodeSelect }
func (WorkflowChange) Event() EventType { return EventWorkflowChange }
func (WorkflowUpdate) Event() EventType { return EventWorkflowUpdate }

func (Auth) sealed()           {}
func (Users) sealed()          {}
func (CursorUpdate) sealed()   {}
func (CursorMove) sealed()     {}
func (NodeUpdate) sealed()     {}
func (NodeSelect) sealed()     {}
func (WorkflowChange) sealed() {}
func (WorkflowUpdate) sealed() {}
