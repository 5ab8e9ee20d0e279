package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfycollab/internal/app/protocol"
)

const waitFor = 2 * time.Second

type recorder struct {
	connects    chan struct{}
	disconnects chan bool
	messages    chan []byte
}

func newRecorder() *recorder {
	return &recorder{
		connects:    make(chan struct{}, 16),
		disconnects: make(chan bool, 16),
		messages:    make(chan []byte, 16),
	}
}

func (r *recorder) OnConnect()                { r.connects <- struct{}{} }
func (r *recorder) OnDisconnect(retrying bool) { r.disconnects <- retrying }
func (r *recorder) OnMessage(frame []byte)    { r.messages <- frame }

// stubHub accepts the token "good", answers with a roster and collects
// every later frame.
type stubHub struct {
	mu        sync.Mutex
	hits      int
	tokens    []string
	dropFirst bool
	received  chan []byte
}

func newStubHub() *stubHub {
	return &stubHub{received: make(chan []byte, 16)}
}

func (h *stubHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.hits++
	drop := h.dropFirst && h.hits == 1
	h.mu.Unlock()

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_, first, err := conn.ReadMessage()
	if err != nil {
		return
	}
	msg, err := protocol.Decode(first)
	if err != nil {
		return
	}
	auth, ok := msg.(protocol.Auth)
	if !ok {
		return
	}

	h.mu.Lock()
	h.tokens = append(h.tokens, auth.Token)
	h.mu.Unlock()

	if auth.Token != "good" {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(CloseAuthRejected, "unauthorized"))
		return
	}

	roster, _ := protocol.Encode(protocol.Users{Roster: protocol.Roster{"1": {ID: "1", Username: "alice"}}})
	if err := conn.WriteMessage(websocket.TextMessage, roster); err != nil {
		return
	}
	if drop {
		return
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.received <- frame
	}
}

func (h *stubHub) hitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits
}

func startHub(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u, err := CanvasURL(srv.URL, "canvas-1")
	require.NoError(t, err)
	return u
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func TestSessionAuthenticatesAndRelays(t *testing.T) {
	hub := newStubHub()
	d := NewDialer(Config{URL: startHub(t, hub), Delay: 10 * time.Millisecond})
	rec := newRecorder()

	sess, err := d.Dial(context.Background(), "good", rec)
	require.NoError(t, err)

	receive(t, rec.connects)
	msg, err := protocol.Decode(receive(t, rec.messages))
	require.NoError(t, err)
	assert.IsType(t, protocol.Users{}, msg)

	require.NoError(t, sess.Send([]byte(`{"type":"cursor_move","payload":{"x":0.1,"y":0.2}}`)))
	assert.JSONEq(t, `{"type":"cursor_move","payload":{"x":0.1,"y":0.2}}`, string(receive(t, hub.received)))

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	receive(t, sess.(*Session).Done())

	assert.Empty(t, rec.disconnects, "closing locally reports nothing")
	assert.ErrorIs(t, sess.Send([]byte(`{}`)), ErrClosed)
}

func TestAuthRejectionIsTerminal(t *testing.T) {
	hub := newStubHub()
	d := NewDialer(Config{URL: startHub(t, hub), Delay: 10 * time.Millisecond})
	rec := newRecorder()

	sess, err := d.Dial(context.Background(), "bad", rec)
	require.NoError(t, err)

	assert.False(t, receive(t, rec.disconnects))
	receive(t, sess.(*Session).Done())

	assert.Equal(t, 1, hub.hitCount())
	assert.Empty(t, rec.connects)
}

func TestSessionRedialsAfterDrop(t *testing.T) {
	hub := newStubHub()
	hub.dropFirst = true
	d := NewDialer(Config{URL: startHub(t, hub), Delay: 10 * time.Millisecond})
	rec := newRecorder()

	sess, err := d.Dial(context.Background(), "good", rec)
	require.NoError(t, err)
	defer sess.Close()

	receive(t, rec.connects)
	assert.True(t, receive(t, rec.disconnects))
	receive(t, rec.connects)

	assert.Equal(t, 2, hub.hitCount())
	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Equal(t, []string{"good", "good"}, hub.tokens)
}

func TestSessionGivesUpAfterAttempts(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	url := startHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))

	d := NewDialer(Config{URL: url, Attempts: 2, Delay: 5 * time.Millisecond})
	rec := newRecorder()

	sess, err := d.Dial(context.Background(), "good", rec)
	require.NoError(t, err)

	assert.False(t, receive(t, rec.disconnects))
	receive(t, sess.(*Session).Done())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, hits, "first dial plus two re-dials")
}

// dropThenRefuse serves one live connection that drops right after the
// handshake and refuses every later dial.
func dropThenRefuse(t *testing.T) (string, func() int) {
	hub := newStubHub()
	hub.dropFirst = true

	var mu sync.Mutex
	hits := 0
	url := startHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		hub.ServeHTTP(w, r)
	}))

	return url, func() int {
		mu.Lock()
		defer mu.Unlock()
		return hits
	}
}

func TestRedialsAfterDropAreBounded(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		wantHits int
		retrying bool
	}{
		{name: "two re-dials", attempts: 2, wantHits: 3, retrying: true},
		{name: "re-dialing disabled", attempts: -1, wantHits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, hits := dropThenRefuse(t)
			d := NewDialer(Config{URL: url, Attempts: tt.attempts, Delay: 5 * time.Millisecond})
			rec := newRecorder()

			sess, err := d.Dial(context.Background(), "good", rec)
			require.NoError(t, err)

			receive(t, rec.connects)
			if tt.retrying {
				assert.True(t, receive(t, rec.disconnects))
			}
			assert.False(t, receive(t, rec.disconnects))
			receive(t, sess.(*Session).Done())

			assert.Equal(t, tt.wantHits, hits())
		})
	}
}

func TestFramesQueuedWhileDisconnectedAreDiscarded(t *testing.T) {
	hub := newStubHub()
	hub.dropFirst = true
	d := NewDialer(Config{URL: startHub(t, hub), Delay: 50 * time.Millisecond})
	rec := newRecorder()

	sess, err := d.Dial(context.Background(), "good", rec)
	require.NoError(t, err)
	defer sess.Close()

	receive(t, rec.connects)
	assert.True(t, receive(t, rec.disconnects))
	require.NoError(t, sess.Send([]byte(`{"type":"cursor_move","payload":{"x":0.1,"y":0.1}}`)))

	receive(t, rec.connects)
	require.NoError(t, sess.Send([]byte(`{"type":"cursor_move","payload":{"x":0.9,"y":0.9}}`)))

	assert.JSONEq(t, `{"type":"cursor_move","payload":{"x":0.9,"y":0.9}}`, string(receive(t, hub.received)))
	assert.Empty(t, hub.received)
}

func TestDialValidatesInput(t *testing.T) {
	_, err := NewDialer(Config{}).Dial(context.Background(), "good", newRecorder())
	assert.Error(t, err)

	_, err = NewDialer(Config{URL: "ws://localhost/ws/x"}).Dial(context.Background(), "", newRecorder())
	assert.Error(t, err)
}

func TestCanvasURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8080", want: "ws://localhost:8080/ws/c1"},
		{base: "https://collab.example.com/", want: "wss://collab.example.com/ws/c1"},
		{base: "https://example.com/app?x=1", want: "wss://example.com/app/ws/c1"},
		{base: "ftp://example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := CanvasURL(tt.base, "c1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
