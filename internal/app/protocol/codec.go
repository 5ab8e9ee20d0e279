package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps m in an envelope.
func Encode(m Message) ([]byte, error) {
	var body any
	switch v := m.(type) {
	case Auth:
		body = v
	case Users:
		body = v.Roster
	case CursorUpdate:
		body = v.Cursor
	case CursorMove:
		body = v.Cursor
	case NodeUpdate:
		body = v.Selection
	case NodeSelect:
		body = v.Selection
	case WorkflowChange:
		body = v.Workflow
	case WorkflowUpdate:
		body = v.Workflow
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", m)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: m.Event(), Payload: payload})
}

// Decode parses one frame. Frames with an unknown type or missing required
// fields return an error wrapping ErrMalformed.
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case EventAuth:
		var a Auth
		if err := unmarshalPayload(env, &a); err != nil {
			return nil, err
		}
		if a.Token == "" {
			return nil, malformed(env.Type, "token is required")
		}
		return a, nil

	case EventUsers:
		var r Roster
		if err := unmarshalPayload(env, &r); err != nil {
			return nil, err
		}
		if r == nil {
			return nil, malformed(env.Type, "roster must be an object")
		}
		return Users{Roster: r}, nil

	case EventCursorUpdate, EventCursorMove:
		c, err := decodeCursor(env)
		if err != nil {
			return nil, err
		}
		if env.Type == EventCursorMove {
			return CursorMove{Cursor: c}, nil
		}
		return CursorUpdate{Cursor: c}, nil

	case EventNodeUpdate, EventNodeSelect:
		s, err := decodeSelection(env)
		if err != nil {
			return nil, err
		}
		if env.Type == EventNodeSelect {
			return NodeSelect{Selection: s}, nil
		}
		return NodeUpdate{Selection: s}, nil

	case EventWorkflowChange, EventWorkflowUpdate:
		var w Workflow
		if err := unmarshalPayload(env, &w); err != nil {
			return nil, err
		}
		if w.UserID == "" && env.Type == EventWorkflowChange {
			return nil, malformed(env.Type, "userId is required")
		}
		if env.Type == EventWorkflowUpdate {
			return WorkflowUpdate{Workflow: w}, nil
		}
		return WorkflowChange{Workflow: w}, nil
	}

	return nil, malformed(env.Type, "unknown event type")
}

// cursorWire uses pointers so absent coordinates are distinguishable from 0.
type cursorWire struct {
	UserID   ID       `json:"userId"`
	Username string   `json:"username"`
	Color    string   `json:"color"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Stamp
}

func decodeCursor(env Envelope) (Cursor, error) {
	var w cursorWire
	if err := unmarshalPayload(env, &w); err != nil {
		return Cursor{}, err
	}

	// the hub stamps userId on cursor_move, so only updates require it
	if w.UserID == "" && env.Type == EventCursorUpdate {
		return Cursor{}, malformed(env.Type, "userId is required")
	}
	if w.X == nil || w.Y == nil {
		return Cursor{}, malformed(env.Type, "x and y are required")
	}

	return Cursor{
		UserID:   w.UserID,
		Username: w.Username,
		Color:    w.Color,
		X:        *w.X,
		Y:        *w.Y,
		Stamp:    w.Stamp,
	}, nil
}

type selectionWire struct {
	UserID   ID     `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
	NodeIDs  *[]ID  `json:"nodeIds"`
	Stamp
}

func decodeSelection(env Envelope) (Selection, error) {
	var w selectionWire
	if err := unmarshalPayload(env, &w); err != nil {
		return Selection{}, err
	}

	if w.UserID == "" && env.Type == EventNodeUpdate {
		return Selection{}, malformed(env.Type, "userId is required")
	}
	if w.NodeIDs == nil {
		return Selection{}, malformed(env.Type, "nodeIds is required")
	}

	return Selection{
		UserID:   w.UserID,
		Username: w.Username,
		Color:    w.Color,
		NodeIDs:  *w.NodeIDs,
		Stamp:    w.Stamp,
	}, nil
}

func unmarshalPayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return malformed(env.Type, "payload is required")
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

func malformed(t EventType, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, t, reason)
}
