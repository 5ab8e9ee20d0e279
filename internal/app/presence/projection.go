package presence

import (
	"comfycollab/internal/app/user"
)

// CursorMark is one remote cursor positioned in percent of the canvas.
type CursorMark struct {
	UserID string
	Label  string
	Color  string
	Left   float64
	Top    float64
}

// Rect is a node's bounding box in canvas coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NodeLocator is implemented by the canvas host.
type NodeLocator interface {
	// NodeBounds returns the box of a node, or false if it is not on the canvas.
	NodeBounds(nodeID string) (Rect, bool)
}

// NodeBox is one highlighted node.
type NodeBox struct {
	NodeID string
	Rect
}

// SelectionMark is the set of nodes a remote user has selected.
type SelectionMark struct {
	UserID string
	Label  string
	Color  string
	Boxes  []NodeBox
}

// ProjectCursors converts cursor records into overlay marks, skipping the
// local user. records is expected in Snapshot order.
func ProjectCursors(records []CursorPresence, localID string) []CursorMark {
	marks := make([]CursorMark, 0, len(records))
	for _, r := range records {
		if r.UserID == localID {
			continue
		}
		marks = append(marks, CursorMark{
			UserID: r.UserID,
			Label:  label(r.Username, r.UserID),
			Color:  color(r.Color),
			Left:   r.X * 100,
			Top:    r.Y * 100,
		})
	}
	return marks
}

// ProjectSelections outlines every selected node the locator can find.
// Users whose selection has no locatable node are omitted.
func ProjectSelections(records []SelectionPresence, localID string, locator NodeLocator) []SelectionMark {
	marks := make([]SelectionMark, 0, len(records))
	for _, r := range records {
		if r.UserID == localID || locator == nil {
			continue
		}

		var boxes []NodeBox
		for _, id := range r.NodeIDs {
			if rect, ok := locator.NodeBounds(id); ok {
				boxes = append(boxes, NodeBox{NodeID: id, Rect: rect})
			}
		}
		if len(boxes) == 0 {
			continue
		}

		marks = append(marks, SelectionMark{
			UserID: r.UserID,
			Label:  label(r.Username, r.UserID),
			Color:  color(r.Color),
			Boxes:  boxes,
		})
	}
	return marks
}

func label(username, userID string) string {
	if username != "" {
		return username
	}
	return userID
}

func color(c string) string {
	if c == "" {
		return user.DefaultColor
	}
	return c
}
