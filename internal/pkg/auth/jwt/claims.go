package jwt

import (
	"github.com/golang-jwt/jwt"

	"comfycollab/internal/app/user"
)

// Payload is the claim set of an access token. It carries the full identity so
// the hub can stamp presence events without a database round trip.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the user's primary key in the auth service.
	ID string `json:"id"`

	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Color       string `json:"color,omitempty"`

	// Role is one of user, moderator, admin.
	Role string `json:"role"`
}

// NewPayload copies an identity into a fresh claim set.
func NewPayload(id user.Identity) *Payload {
	return &Payload{
		ID:          id.ID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Color:       id.Color,
		Role:        id.Role,
	}
}

// Identity converts the claims back into a user.Identity.
func (p *Payload) Identity() user.Identity {
	return user.Identity{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Color:       p.Color,
		Role:        p.Role,
	}
}
