package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfycollab/internal/app/api"
	"comfycollab/internal/app/presence"
	"comfycollab/internal/app/user"
)

type nopSession struct{}

func (nopSession) Send([]byte) error { return nil }
func (nopSession) Close() error      { return nil }

type fakeDialer struct {
	mu     sync.Mutex
	tokens []string
	events presence.Events
}

func (d *fakeDialer) Dial(_ context.Context, token string, events presence.Events) (presence.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	d.events = events
	return nopSession{}, nil
}

// backend accepts alice/pw and the token "jwt-alice"; /api/settings is
// always 401.
func backend(t *testing.T) *httptest.Server {
	t.Helper()

	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	unauthorized := func(w http.ResponseWriter) {
		write(w, http.StatusUnauthorized, map[string]any{"code": 3001, "message": "Unauthorized."})
	}

	mux := chi.NewRouter()
	mux.Post("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("username") != "alice" || r.FormValue("password") != "pw" {
			unauthorized(w)
			return
		}
		write(w, http.StatusOK, map[string]any{"access_token": "jwt-alice", "token_type": "bearer"})
	})
	mux.Get("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-alice" {
			unauthorized(w)
			return
		}
		write(w, http.StatusOK, map[string]any{"id": 1, "username": "alice", "color": "#ff0000", "is_active": true})
	})
	mux.Get("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		unauthorized(w)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T) (*Session, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	channel := presence.NewChannel(dialer, presence.WithoutSweeper())
	t.Cleanup(channel.Disconnect)
	return New(api.New(backend(t).URL), channel), dialer
}

func TestLoginConnectsPresence(t *testing.T) {
	s, dialer := newSession(t)

	id, state, err := s.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	assert.Equal(t, user.Identity{ID: "1", Username: "alice", Color: "#ff0000", Role: user.RoleUser}, id)
	assert.Equal(t, presence.Connecting, state.Status)
	assert.Equal(t, []string{"jwt-alice"}, dialer.tokens)
	assert.True(t, s.Authenticated())
	assert.Equal(t, "jwt-alice", s.API().Token())

	dialer.events.OnConnect()
	assert.True(t, s.Channel().Connected())
}

func TestWrongPasswordLeavesSessionEmpty(t *testing.T) {
	s, dialer := newSession(t)

	_, _, err := s.Login(context.Background(), "alice", "nope")
	assert.True(t, api.IsUnauthorized(err))
	assert.False(t, s.Authenticated())
	assert.Empty(t, dialer.tokens)
}

func TestRestoreWithRevokedTokenDoesNotConnect(t *testing.T) {
	s, dialer := newSession(t)

	_, _, err := s.Restore(context.Background(), "revoked")
	assert.True(t, api.IsUnauthorized(err))
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.API().Token())
	assert.Empty(t, dialer.tokens)

	_, _, err = s.Restore(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestUnauthorizedResponseDisconnectsPresence(t *testing.T) {
	s, dialer := newSession(t)

	_, _, err := s.Restore(context.Background(), "jwt-alice")
	require.NoError(t, err)
	dialer.events.OnConnect()
	require.True(t, s.Channel().Connected())

	_, err = s.API().GetSettings(context.Background())
	require.Error(t, err)

	assert.False(t, s.Authenticated())
	assert.Empty(t, s.API().Token())
	assert.Equal(t, presence.Disconnected, s.Channel().State().Status)

	s.Invalidate()
	assert.False(t, s.Authenticated())
}
