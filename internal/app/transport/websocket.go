/*
Package transport implements the presence Dialer over a gorilla websocket.

A session owns one logical connection to /ws/{canvas} on the hub. The first
frame on every physical connection is the auth handshake; the hub answers
with the roster, which is taken as proof that the handshake succeeded. Lost
connections are re-dialed a bounded number of times with a fixed delay. The
presence layer only ever learns "connected" or "disconnected".
*/
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"comfycollab/internal/app/presence"
	"comfycollab/internal/app/protocol"
	"comfycollab/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed between two frames from the hub (pongs included).
	pongWait = 60 * time.Second

	// frequency at which the client sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum accepted frame size; workflow documents can be large.
	maxMessageSize = 4 << 20

	// outbound frames queued while the writer is busy.
	sendQueueSize = 256

	// DefaultAttempts is the number of re-dials after a failure.
	DefaultAttempts = 5

	// DefaultDelay is the fixed pause before each re-dial.
	DefaultDelay = time.Second

	// DefaultHandshakeTimeout bounds dial plus auth round trip.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Close codes sent by the hub. Both are terminal for the session.
const (
	CloseSessionKicked = 4001
	CloseAuthRejected  = 4401
)

var (
	ErrClosed       = errors.New("transport: session closed")
	ErrQueueFull    = errors.New("transport: send queue full")
	errAuthRejected = errors.New("transport: authentication rejected")
)

// Config configures a Dialer.
type Config struct {
	// URL is the websocket endpoint of one canvas, see CanvasURL.
	URL string

	// Attempts is the number of re-dials after a failed first dial or after
	// a live connection drops. Zero means DefaultAttempts; a negative value
	// disables re-dialing.
	Attempts int

	// Delay is the pause before each re-dial. Zero means DefaultDelay.
	Delay time.Duration

	// HandshakeTimeout bounds the dial and the auth round trip.
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Attempts < 0 {
		c.Attempts = 0
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

// CanvasURL derives the websocket endpoint of canvas from the REST base URL.
func CanvasURL(baseURL, canvas string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(canvas)
	u.RawQuery = ""
	return u.String(), nil
}

// Dialer opens websocket sessions. It implements presence.Dialer.
type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger zerolog.Logger
}

// NewDialer returns a Dialer for cfg.
func NewDialer(cfg Config) *Dialer {
	cfg = cfg.withDefaults()
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logx.Component("transport").With().Str("url", cfg.URL).Logger(),
	}
}

// Dial starts a session in the background and returns immediately.
func (d *Dialer) Dial(ctx context.Context, token string, events presence.Events) (presence.Session, error) {
	if d.cfg.URL == "" {
		return nil, errors.New("transport: no url configured")
	}
	if token == "" {
		return nil, errors.New("transport: empty token")
	}

	auth, err := protocol.Encode(protocol.Auth{Token: token})
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		dialer: d,
		auth:   auth,
		events: events,
		send:   make(chan []byte, sendQueueSize),
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: d.logger,
	}
	go s.run()
	return s, nil
}

// Session is one logical connection, re-dialed as needed.
type Session struct {
	dialer *Dialer
	auth   []byte
	events presence.Events
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger

	closeOnce sync.Once
}

// Send queues frame for the writer. It never blocks.
func (s *Session) Send(frame []byte) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Send queue full, dropping frame")
		return ErrQueueFull
	}
}

// Close stops the session and any pending re-dial. It does not wait for
// the background goroutine; use Done for that.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	failures := 0
	redial := false
	for {
		conn, first, err := s.connect()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			failures++
			if errors.Is(err, errAuthRejected) || failures > s.dialer.cfg.Attempts {
				s.logger.Warn().Err(err).Int("failures", failures).Msg("Giving up on hub connection")
				s.events.OnDisconnect(false)
				return
			}
			s.logger.Debug().Err(err).Int("failures", failures).Msg("Hub dial failed, retrying")
			if !s.wait() {
				return
			}
			continue
		}

		if redial {
			if n := s.drain(); n > 0 {
				s.logger.Debug().Int("frames", n).Msg("Discarded frames queued before reconnect")
			}
		}
		s.events.OnConnect()
		s.events.OnMessage(first)

		code := s.serve(conn)
		if s.ctx.Err() != nil {
			return
		}
		if code == CloseAuthRejected || code == CloseSessionKicked {
			s.logger.Info().Int("close_code", code).Msg("Hub ended the session")
			s.events.OnDisconnect(false)
			return
		}

		// the drop counts as the first failure
		failures = 1
		redial = true
		if failures > s.dialer.cfg.Attempts {
			s.logger.Warn().Msg("Hub connection lost and re-dialing is disabled")
			s.events.OnDisconnect(false)
			return
		}
		s.events.OnDisconnect(true)
		if !s.wait() {
			return
		}
	}
}

// drain discards frames queued for a connection that no longer exists.
func (s *Session) drain() int {
	n := 0
	for {
		select {
		case <-s.send:
			n++
		default:
			return n
		}
	}
}

// wait sleeps for the re-dial delay; false means the session was closed.
func (s *Session) wait() bool {
	timer := time.NewTimer(s.dialer.cfg.Delay)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// connect dials, sends the auth frame and waits for the hub's first frame.
func (s *Session) connect() (*websocket.Conn, []byte, error) {
	cfg := s.dialer.cfg
	dialCtx, cancel := context.WithTimeout(s.ctx, cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := s.dialer.ws.DialContext(dialCtx, cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, nil, errAuthRejected
		}
		return nil, nil, err
	}

	// Close must be able to interrupt the auth round trip.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	deadline := time.Now().Add(cfg.HandshakeTimeout)

	if err := conn.SetWriteDeadline(deadline); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, s.auth); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return nil, nil, err
	}
	_, first, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		if websocket.IsCloseError(err, CloseAuthRejected) {
			return nil, nil, errAuthRejected
		}
		return nil, nil, err
	}

	return conn, first, nil
}

// serve pumps frames until the connection breaks or the session is closed,
// and returns the close code sent by the hub, if any.
func (s *Session) serve(conn *websocket.Conn) int {
	stopped := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, stopped)
	}()

	code := s.readPump(conn)

	close(stopped)
	<-writerDone
	if err := conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Connection close error")
	}
	return code
}

func (s *Session) readPump(conn *websocket.Conn) int {
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return 0
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return closeErr.Code
			}
			if s.ctx.Err() == nil {
				s.logger.Info().Err(err).Msg("Hub connection lost")
			}
			return 0
		}

		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return 0
		}
		s.events.OnMessage(frame)
	}
}

func (s *Session) writePump(conn *websocket.Conn, stopped <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stopped:
			return

		case <-s.ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
				s.logger.Debug().Err(err).Msg("Error writing close message")
			}
			// unblocks readPump
			conn.Close()
			return

		case frame := <-s.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Warn().Err(err).Msg("Error writing frame")
				conn.Close()
				return
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn().Err(err).Msg("Error writing ping")
				conn.Close()
				return
			}
		}
	}
}
