package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
	"comfycollab/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	// Workflow documents travel through the hub, so this is generous.
	maxMessageSize = 4 << 20

	// frames queued per client before it is considered too slow.
	sendBufferSize = 256

	// how long a rejected peer gets to answer the close frame.
	closeGracePeriod = time.Second
)

// Client is one authenticated websocket connection on a canvas.
type Client struct {
	canvas   *Canvas
	conn     *websocket.Conn
	identity user.Identity

	// a buffered channel of frames waiting to be written. Only the canvas
	// Run goroutine sends on it or closes it.
	send chan []byte

	// closed and closeCode are owned by the canvas Run goroutine; the write
	// pump reads closeCode after send is closed.
	closed    bool
	closeCode int

	// admitted carries the Run loop's verdict on registration.
	admitted chan bool

	logger zerolog.Logger
}

func newClient(canvas *Canvas, conn *websocket.Conn, identity user.Identity) *Client {
	return &Client{
		canvas:   canvas,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
		admitted: make(chan bool, 1),
		logger: logx.Component("client").With().
			Str("user_id", identity.ID).
			Str("canvas_id", canvas.ID).
			Logger(),
	}
}

// enqueue queues frame without blocking. It reports false when the queue is full.
func (c *Client) enqueue(frame []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close ends the write pump; a non-zero code is sent as the close frame.
func (c *Client) close(code int) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.send)
}

// readPump reads frames until the connection fails, then unregisters.
func (c *Client) readPump() {
	defer func() {
		c.canvas.leave(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame")
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}

		c.handleFrame(frame)
	}
}

// handleFrame stamps the client identity over the sender fields and maps the
// client event to the event peers receive.
func (c *Client) handleFrame(frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Client sent malformed frame")
		return
	}

	var out protocol.Message
	switch m := msg.(type) {
	case protocol.CursorMove:
		cursor := m.Cursor
		cursor.UserID = protocol.ID(c.identity.ID)
		cursor.Username = c.identity.Username
		cursor.Color = c.identity.CursorColor()
		out = protocol.CursorUpdate{Cursor: cursor}

	case protocol.NodeSelect:
		sel := m.Selection
		sel.UserID = protocol.ID(c.identity.ID)
		sel.Username = c.identity.Username
		sel.Color = c.identity.CursorColor()
		out = protocol.NodeUpdate{Selection: sel}

	case protocol.WorkflowUpdate:
		wf := m.Workflow
		wf.UserID = protocol.ID(c.identity.ID)
		wf.Username = c.identity.Username
		out = protocol.WorkflowChange{Workflow: wf}

	default:
		c.logger.Warn().Str("event", string(msg.Event())).Msg("Client sent unsupported event")
		return
	}

	encoded, err := protocol.Encode(out)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode relayed event")
		return
	}
	c.canvas.publish(relayed{from: c, event: out.Event(), frame: encoded})
}

// writePump writes queued frames and periodic pings until send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in writePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueued(frame, ok) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Info().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// writeQueued writes one frame, or the close frame once send is closed.
// It reports whether the pump should continue.
func (c *Client) writeQueued(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		code := c.closeCode
		if code == 0 {
			code = websocket.CloseNormalClosure
		} else {
			c.logger.Info().Int("close_code", code).Msg("Closing client connection")
		}
		msg := websocket.FormatCloseMessage(code, closeReason(code))
		if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Info().Err(err).Msg("Error writing frame")
		return false
	}
	return true
}

func closeReason(code int) string {
	switch code {
	case CloseSessionKicked:
		return "session replaced by a new connection"
	case CloseCanvasFull:
		return "canvas is full"
	default:
		return ""
	}
}
