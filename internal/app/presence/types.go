/*
Package presence keeps the ephemeral state of remote collaborators on a canvas:
where their pointer is and which nodes they have selected.

A Channel owns one realtime session and is the only writer of two presence
tables (cursors and selections). A Sweeper evicts records whose owner went
quiet, and the projection functions turn table snapshots into overlay marks
for the canvas host. Nothing in this package returns errors to the UI; faults
degrade to "no remote cursors visible".
*/
package presence

import (
	"slices"
	"time"
)

// Kind names a presence table.
type Kind string

const (
	KindCursor    Kind = "cursor"
	KindSelection Kind = "selection"
)

// Default policy values.
const (
	DefaultSweepInterval = time.Second
	DefaultCursorTTL     = 5 * time.Second
	DefaultSelectionTTL  = 30 * time.Second
)

// CursorPresence is the last known pointer position of a remote user.
// X and Y are fractions of the canvas size in [0,1].
type CursorPresence struct {
	UserID   string
	X        float64
	Y        float64
	Username string
	Color    string
	LastSeen time.Time
}

// Key implements record.
func (c CursorPresence) Key() string { return c.UserID }

// Seen implements record.
func (c CursorPresence) Seen() time.Time { return c.LastSeen }

// SelectionPresence is the current node selection of a remote user.
type SelectionPresence struct {
	UserID   string
	NodeIDs  NodeSet
	Username string
	Color    string
	LastSeen time.Time
}

// Key implements record.
func (s SelectionPresence) Key() string { return s.UserID }

// Seen implements record.
func (s SelectionPresence) Seen() time.Time { return s.LastSeen }

// NodeSet is a sorted, duplicate-free list of node identifiers.
type NodeSet []string

// NewNodeSet normalizes ids into a NodeSet. Empty ids are dropped.
func NewNodeSet(ids ...string) NodeSet {
	set := make(NodeSet, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			set = append(set, id)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Contains reports whether id is in the set.
func (s NodeSet) Contains(id string) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

// ConnectionStatus is the lifecycle state of a Channel.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnectionState is a snapshot of the channel lifecycle.
type ConnectionState struct {
	Status ConnectionStatus

	// Session is the ordering session id stamped on outgoing events while
	// a connection attempt is live.
	Session string
}

// Connected is the only signal the UI layer gets about transport health.
func (s ConnectionState) Connected() bool {
	return s.Status == Connected
}

// WorkflowNotice is forwarded, untouched, to the document sync layer.
type WorkflowNotice struct {
	UserID       string
	Username     string
	WorkflowData []byte
}

// ChangeKind tells subscribers which part of the state moved.
type ChangeKind int

const (
	ChangeCursors ChangeKind = 1 << iota
	ChangeSelections
	ChangeRoster
	ChangeConnection
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind ChangeKind
}

// Has reports whether c includes k.
func (c Change) Has(k ChangeKind) bool {
	return c.Kind&k != 0
}
