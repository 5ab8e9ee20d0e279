package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfycollab/internal/app/presence"
	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
)

type capturingSession struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *capturingSession) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *capturingSession) Close() error { return nil }

func (s *capturingSession) events(t *testing.T) []protocol.EventType {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.EventType, 0, len(s.frames))
	for _, f := range s.frames {
		m, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, m.Event())
	}
	return out
}

type capturingDialer struct {
	session *capturingSession
	events  presence.Events
}

func (d *capturingDialer) Dial(_ context.Context, _ string, events presence.Events) (presence.Session, error) {
	d.events = events
	return d.session, nil
}

func TestPinnedPresenceIsReannounced(t *testing.T) {
	dialer := &capturingDialer{session: &capturingSession{}}
	channel := presence.NewChannel(dialer, presence.WithoutSweeper())
	t.Cleanup(channel.Disconnect)

	channel.Connect(context.Background(), user.Identity{ID: "1", Username: "alice"}, "token")
	dialer.events.OnConnect()
	require.True(t, channel.Connected())

	pin := pinned{cursor: &[2]float64{0.5, 0.5}, selection: []string{"n1", "n2"}}
	pin.announce(channel)
	pin.announce(channel)

	assert.Equal(t, []protocol.EventType{
		protocol.EventCursorMove, protocol.EventNodeSelect,
		protocol.EventCursorMove, protocol.EventNodeSelect,
	}, dialer.session.events(t))
}

func TestEmptyPinSendsNothing(t *testing.T) {
	dialer := &capturingDialer{session: &capturingSession{}}
	channel := presence.NewChannel(dialer, presence.WithoutSweeper())
	t.Cleanup(channel.Disconnect)

	channel.Connect(context.Background(), user.Identity{ID: "1", Username: "alice"}, "token")
	dialer.events.OnConnect()

	pinned{}.announce(channel)
	assert.Empty(t, dialer.session.events(t))
}
