/*
Package session owns the client-side login state: the bearer token, the
resolved identity and the single presence Channel bound to them.

A REST 401 anywhere invalidates the session, which also disconnects the
presence channel; there is no token refresh.
*/
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"comfycollab/internal/app/api"
	"comfycollab/internal/app/presence"
	"comfycollab/internal/app/user"
	"comfycollab/internal/pkg/logx"
)

// ErrNotAuthenticated is returned by calls that need a live session.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Session binds an api.Client and a presence.Channel to one login.
type Session struct {
	api     *api.Client
	channel *presence.Channel
	logger  zerolog.Logger

	mu       sync.Mutex
	token    string
	identity user.Identity
}

// New wires client 401s to Invalidate.
func New(client *api.Client, channel *presence.Channel) *Session {
	s := &Session{
		api:     client,
		channel: channel,
		logger:  logx.Component("session"),
	}
	client.OnUnauthorized(s.Invalidate)
	return s
}

// Login exchanges credentials for a token and restores a session from it.
func (s *Session) Login(ctx context.Context, username, password string) (user.Identity, presence.ConnectionState, error) {
	tok, err := s.api.Login(ctx, username, password)
	if err != nil {
		return user.Identity{}, presence.ConnectionState{}, err
	}
	return s.Restore(ctx, tok.AccessToken)
}

// Restore resolves the identity behind token and connects presence.
// The presence connection outlives ctx.
func (s *Session) Restore(ctx context.Context, token string) (user.Identity, presence.ConnectionState, error) {
	if token == "" {
		return user.Identity{}, presence.ConnectionState{}, ErrNotAuthenticated
	}

	s.api.SetToken(token)
	me, err := s.api.Me(ctx)
	if err != nil {
		s.Invalidate()
		return user.Identity{}, presence.ConnectionState{}, err
	}

	identity := me.Identity()
	if !identity.Valid() {
		s.Invalidate()
		return user.Identity{}, presence.ConnectionState{}, ErrNotAuthenticated
	}

	s.mu.Lock()
	s.token = token
	s.identity = identity
	s.mu.Unlock()

	state := s.channel.Connect(context.WithoutCancel(ctx), identity, token)
	s.logger.Info().
		Str("user_id", identity.ID).
		Str("presence", state.Status.String()).
		Msg("Session established")

	return identity, state, nil
}

// Invalidate forgets the token and disconnects presence. It is idempotent
// and safe to call from the api client's 401 hook.
func (s *Session) Invalidate() {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.identity = user.Identity{}
	s.mu.Unlock()

	s.api.SetToken("")
	s.channel.Disconnect()

	if had {
		s.logger.Info().Msg("Session invalidated")
	}
}

// Identity returns the current identity, if authenticated.
func (s *Session) Identity() (user.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.token != ""
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	_, ok := s.Identity()
	return ok
}

// Channel returns the presence channel of this session.
func (s *Session) Channel() *presence.Channel {
	return s.channel
}

// API returns the REST client of this session.
func (s *Session) API() *api.Client {
	return s.api
}
