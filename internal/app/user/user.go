/*
Package user defines the identity of a collaborator.

An Identity is resolved once per session (from the auth token on the hub, from
GET /api/users/me on the client) and copied into every presence event the
collaborator sends.
*/
package user

import "strings"

// DefaultColor is used for collaborators that never picked a cursor color.
const DefaultColor = "#3498db"

// Roles known to the auth service.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Identity is immutable for the lifetime of a session.
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color"`
	Role        string `json:"role,omitempty"`
}

// DisplayLabel is the text shown next to a remote cursor.
func (i Identity) DisplayLabel() string {
	if strings.TrimSpace(i.DisplayName) != "" {
		return i.DisplayName
	}
	return i.Username
}

// CursorColor returns the identity's color or DefaultColor.
func (i Identity) CursorColor() string {
	if i.Color == "" {
		return DefaultColor
	}
	return i.Color
}

// Valid reports whether the identity can stamp outgoing events.
func (i Identity) Valid() bool {
	return i.ID != "" && i.Username != ""
}
