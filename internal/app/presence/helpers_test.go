package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
)

var (
	alice = user.Identity{ID: "1", Username: "alice", Color: "#ff0000"}
	bob   = user.Identity{ID: "2", Username: "bob", Color: "#00ff00"}
)

type fakeSession struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *fakeSession) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) sent(t *testing.T) []protocol.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Message, 0, len(s.frames))
	for _, f := range s.frames {
		m, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	dials    int
	token    string
	events   []Events
	sessions []*fakeSession
}

func (d *fakeDialer) Dial(_ context.Context, token string, events Events) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.token = token
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSession{}
	d.events = append(d.events, events)
	d.sessions = append(d.sessions, s)
	return s, nil
}

// last returns the callbacks and session of the most recent dial.
func (d *fakeDialer) last() (Events, *fakeSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.events)
	return d.events[n-1], d.sessions[n-1]
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *manualClock {
	return &manualClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// connected returns a channel bound to alice with a live fake transport.
func connected(t *testing.T, opts ...Option) (*Channel, *fakeDialer, *manualClock) {
	t.Helper()

	clock := newClock()
	dialer := &fakeDialer{}
	opts = append([]Option{WithClock(clock.Now), WithoutSweeper()}, opts...)
	ch := NewChannel(dialer, opts...)

	state := ch.Connect(context.Background(), alice, "token-a")
	require.Equal(t, Connecting, state.Status)

	events, _ := dialer.last()
	events.OnConnect()
	require.True(t, ch.Connected())

	t.Cleanup(ch.Disconnect)
	return ch, dialer, clock
}

func frame(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	b, err := protocol.Encode(m)
	require.NoError(t, err)
	return b
}

func cursorFrame(t *testing.T, id user.Identity, x, y float64, stamp protocol.Stamp) []byte {
	return frame(t, protocol.CursorUpdate{Cursor: protocol.Cursor{
		UserID: protocol.ID(id.ID), Username: id.Username, Color: id.Color, X: x, Y: y, Stamp: stamp,
	}})
}

func selectionFrame(t *testing.T, id user.Identity, nodes ...protocol.ID) []byte {
	if nodes == nil {
		nodes = []protocol.ID{}
	}
	return frame(t, protocol.NodeUpdate{Selection: protocol.Selection{
		UserID: protocol.ID(id.ID), Username: id.Username, Color: id.Color, NodeIDs: nodes,
	}})
}
