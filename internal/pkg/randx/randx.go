/*
Package randx generates and validates the identifiers used on the wire:
presence session ids, object keys and canvas ids.
*/
package randx

import (
	"regexp"

	"github.com/google/uuid"
)

const (
	// CanvasIDMaxLength bounds the canvas identifier taken from the URL.
	CanvasIDMaxLength = 64
)

var (
	canvasIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// SessionID returns a random id that distinguishes two connections of the same user.
func SessionID() string {
	return uuid.NewString()
}

// ObjectID returns a random id for stored output files.
func ObjectID() string {
	return uuid.New().String()
}

// IsValidCanvasID reports whether id can name a canvas (workflow) session.
func IsValidCanvasID(id string) bool {
	return len(id) > 0 && len(id) <= CanvasIDMaxLength && canvasIDPattern.MatchString(id)
}

// IsValidHexColor reports whether c is a #rgb or #rrggbb color.
func IsValidHexColor(c string) bool {
	return hexColorPattern.MatchString(c)
}
