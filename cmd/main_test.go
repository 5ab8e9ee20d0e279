package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"comfycollab/internal/app/user"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "comfycollab version dev")
}

func TestParsePoint(t *testing.T) {
	x, y, err := parsePoint("0.25, 0.75")
	require.NoError(t, err)
	assert.Equal(t, 0.25, x)
	assert.Equal(t, 0.75, y)

	for _, bad := range []string{"0.5", "a,1", "1,b"} {
		_, _, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewUserParams(t *testing.T) {
	p, err := newUserParams("alice", "secret1", "Alice", "", "#ff0000", user.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, p.DisplayName.Valid)
	assert.False(t, p.Email.Valid)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("secret1")))

	tests := []struct {
		name                            string
		username, password, color, role string
	}{
		{"bad username", "Al ice", "secret1", "#fff", user.RoleUser},
		{"short password", "alice", "abc", "#fff", user.RoleUser},
		{"bad color", "alice", "secret1", "red", user.RoleUser},
		{"bad role", "alice", "secret1", "#fff", "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newUserParams(tt.username, tt.password, "", "", tt.color, tt.role)
			assert.Error(t, err)
		})
	}
}
