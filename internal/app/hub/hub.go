/*
Package hub is the relay server behind /ws/{canvas}.

The Hub tracks one Canvas per canvas id, created on first join and removed
after it has been empty for the inactivity timeout. Every websocket starts
with an auth frame; the resolved identity is stamped over the sender fields
of everything that client relays, so peers never see a forged userId.

	cursor_move     -> cursor_update    (all other clients of the canvas)
	node_select     -> node_update
	workflow_update -> workflow_change
	join / leave    -> users            (everyone, including the new client)
*/
package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
	"comfycollab/internal/pkg/auth/jwt"
	"comfycollab/internal/pkg/errs"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/metrics"
)

const (
	// DefaultMaxCanvasClients caps the clients of one canvas.
	DefaultMaxCanvasClients = 50

	// DefaultInactivityTimeout is how long an empty canvas is kept.
	DefaultInactivityTimeout = 5 * time.Minute

	// DefaultHandshakeTimeout bounds the wait for the auth frame.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Close codes in the private 4000-4999 range.
const (
	// CloseSessionKicked tells a client a newer connection of the same user replaced it.
	CloseSessionKicked = 4001

	// CloseCanvasFull tells a client the canvas reached its capacity.
	CloseCanvasFull = 4009

	// CloseAuthRejected tells a client its handshake failed. Clients must not retry.
	CloseAuthRejected = 4401
)

// Authenticator resolves a bearer token into an identity.
type Authenticator interface {
	Authenticate(token string) (user.Identity, error)
}

// JWTAuthenticator validates tokens minted by the auth endpoint.
type JWTAuthenticator struct {
	Secret string
}

// Authenticate implements Authenticator.
func (a JWTAuthenticator) Authenticate(token string) (user.Identity, error) {
	payload, err := jwt.ParseToken(token, a.Secret)
	if err != nil {
		return user.Identity{}, err
	}
	id := payload.Identity()
	if !id.Valid() {
		return user.Identity{}, jwt.ErrInvalidToken
	}
	return id, nil
}

// Config configures a Hub. Zero fields take the defaults above; a negative
// MaxCanvasClients removes the capacity limit.
type Config struct {
	MaxCanvasClients  int
	InactivityTimeout time.Duration
	HandshakeTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	switch {
	case c.MaxCanvasClients == 0:
		c.MaxCanvasClients = DefaultMaxCanvasClients
	case c.MaxCanvasClients < 0:
		c.MaxCanvasClients = 0
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

// Hub coordinates every live canvas.
type Hub struct {
	cfg  Config
	auth Authenticator

	// canvases stores every Canvas, keyed by canvas id.
	canvases map[string]*Canvas

	// mu protects canvases and closed.
	mu     sync.RWMutex
	closed bool

	// the channel canvases use to ask for their removal.
	cleanup chan *Canvas

	// wg waits for runCleanupLoop during shutdown.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// New constructs a Hub and starts its cleanup loop.
func New(cfg Config, auth Authenticator) *Hub {
	h := &Hub{
		cfg:      cfg.withDefaults(),
		auth:     auth,
		canvases: make(map[string]*Canvas),
		cleanup:  make(chan *Canvas, 16),
		logger:   logx.Component("hub"),
	}

	h.wg.Add(1)
	go h.runCleanupLoop()

	return h
}

// runCleanupLoop removes canvases whose Run loop finished.
func (h *Hub) runCleanupLoop() {
	defer h.wg.Done()

	for c := range h.cleanup {
		h.deleteCanvas(c)
	}
}

// deleteCanvas removes c unless it was already replaced.
func (h *Hub) deleteCanvas(c *Canvas) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.canvases[c.ID]; ok && current == c {
		delete(h.canvases, c.ID)
		metrics.HubCanvases.Set(float64(len(h.canvases)))
		h.logger.Info().Str("canvas_id", c.ID).Msg("Canvas removed")
	}
}

// Canvas returns the live canvas for id, creating it when needed.
// It returns nil once the hub is shut down.
func (h *Hub) Canvas(id string) *Canvas {
	h.mu.RLock()
	c, ok := h.canvases[id]
	h.mu.RUnlock()
	if ok && !c.stopped() {
		return c
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	if c, ok := h.canvases[id]; ok && !c.stopped() {
		return c
	}

	c = newCanvas(id, h.cfg.MaxCanvasClients, h.cfg.InactivityTimeout, h.cleanup)
	h.canvases[id] = c
	go c.Run()

	metrics.HubCanvases.Set(float64(len(h.canvases)))
	h.logger.Info().Str("canvas_id", id).Int("max_clients", c.MaxClients).Msg("Canvas created")
	return c
}

// Lookup returns the canvas for id without creating it.
func (h *Hub) Lookup(id string) *Canvas {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.canvases[id]
	if !ok || c.stopped() {
		return nil
	}
	return c
}

// CanvasCount returns the number of live canvases.
func (h *Hub) CanvasCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.canvases)
}

// Serve runs the whole lifecycle of one upgraded connection: handshake,
// registration and the read loop. It returns when the client is gone.
func (h *Hub) Serve(conn *websocket.Conn, canvasID string) {
	identity, err := h.handshake(conn)
	if err != nil {
		h.reject(conn, err)
		return
	}

	for i := 0; i < 2; i++ {
		canvas := h.Canvas(canvasID)
		if canvas == nil {
			h.closeWith(conn, websocket.CloseGoingAway, errs.NewError(errs.ErrHubUnavailable).Message)
			return
		}

		client := newClient(canvas, conn, identity)
		accepted, open := canvas.join(client)
		if !open {
			// the canvas shut down between lookup and join; a fresh one is created
			continue
		}
		if !accepted {
			// frames already sent by the client are never read
			h.closeWith(conn, CloseCanvasFull, closeReason(CloseCanvasFull))
			return
		}

		go client.writePump()
		client.readPump()
		return
	}

	h.closeWith(conn, websocket.CloseTryAgainLater, errs.NewError(errs.ErrHubUnavailable).Message)
}

var errHandshakeFrame = errs.NewError(errs.ErrHandshakeRequired)

// handshake reads the auth frame and resolves the token.
func (h *Hub) handshake(conn *websocket.Conn) (user.Identity, error) {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout)); err != nil {
		return user.Identity{}, err
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		metrics.HubHandshakeFailures.WithLabelValues("read").Inc()
		return user.Identity{}, err
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		metrics.HubHandshakeFailures.WithLabelValues("malformed").Inc()
		return user.Identity{}, errHandshakeFrame
	}
	auth, ok := msg.(protocol.Auth)
	if !ok {
		metrics.HubHandshakeFailures.WithLabelValues("not_auth").Inc()
		return user.Identity{}, errHandshakeFrame
	}

	identity, err := h.auth.Authenticate(auth.Token)
	if err != nil {
		metrics.HubHandshakeFailures.WithLabelValues("token").Inc()
		h.logger.Info().Err(err).Msg("Websocket token rejected")
		return user.Identity{}, errs.NewError(errs.ErrUnauthorized)
	}

	return identity, nil
}

func (h *Hub) reject(conn *websocket.Conn, err error) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		// read failure: the peer is gone or never spoke
		conn.Close()
		return
	}
	h.closeWith(conn, CloseAuthRejected, customErr.Message)
}

// closeWith sends a close frame and discards whatever the peer still sends
// until it answers the close, so unread frames do not reset the connection
// before the close frame is delivered.
func (h *Hub) closeWith(conn *websocket.Conn, code int, reason string) {
	defer conn.Close()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		h.logger.Debug().Err(err).Int("close_code", code).Msg("Failed to write close frame")
		return
	}

	if err := conn.SetReadDeadline(time.Now().Add(closeGracePeriod)); err != nil {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Shutdown stops every canvas and the cleanup loop. Later calls are no-ops.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.logger.Info().Msg("Shutting down hub")
	canvases := make([]*Canvas, 0, len(h.canvases))
	for _, c := range h.canvases {
		canvases = append(canvases, c)
	}
	h.mu.Unlock()

	for _, c := range canvases {
		c.Stop()
		<-c.done
	}

	close(h.cleanup)
	h.wg.Wait()

	h.mu.Lock()
	clear(h.canvases)
	h.mu.Unlock()
	metrics.HubCanvases.Set(0)

	h.logger.Info().Msg("Hub shutdown complete")
}
