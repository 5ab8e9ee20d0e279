package hub

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/metrics"
)

const relayChannelBuffer = 1024

// relayed is one frame ready for fan-out. from is skipped.
type relayed struct {
	from  *Client
	event protocol.EventType
	frame []byte
}

// Canvas is the session of everyone editing one canvas. All of its state is
// owned by the Run goroutine.
type Canvas struct {
	// ID is the canvas (workflow) identifier from the URL.
	ID string

	// MaxClients caps distinct users.
	MaxClients int

	// clients of the canvas, keyed by user id.
	clients map[string]*Client

	// size mirrors len(clients) for readers outside Run.
	size atomic.Int32

	register   chan *Client
	unregister chan *Client
	relay      chan relayed

	// stop forces Run to return; done is closed once it has.
	stop chan struct{}
	done chan struct{}

	inactivity time.Duration
	cleanup    chan<- *Canvas

	logger zerolog.Logger
}

func newCanvas(id string, maxClients int, inactivity time.Duration, cleanup chan<- *Canvas) *Canvas {
	return &Canvas{
		ID:         id,
		MaxClients: maxClients,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		relay:      make(chan relayed, relayChannelBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		inactivity: inactivity,
		cleanup:    cleanup,
		logger:     logx.Component("canvas").With().Str("canvas_id", id).Logger(),
	}
}

// Stop asks Run to return. It is safe to call more than once.
func (c *Canvas) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Canvas) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// join hands client to the Run loop and waits for its verdict. open is
// false if the canvas had already shut down; accepted is false if the
// canvas turned the client away.
func (c *Canvas) join(client *Client) (accepted, open bool) {
	select {
	case c.register <- client:
	case <-c.done:
		return false, false
	}

	// Run answers before it can return, so the verdict is always there.
	return <-client.admitted, true
}

func (c *Canvas) leave(client *Client) {
	select {
	case c.unregister <- client:
	case <-c.done:
	}
}

func (c *Canvas) publish(r relayed) {
	select {
	case c.relay <- r:
	case <-c.done:
	}
}

// Run is the event loop of the canvas. It returns on Stop or after the
// canvas stayed empty for the inactivity timeout.
func (c *Canvas) Run() {
	timer := time.NewTimer(c.inactivity)

	defer func() {
		timer.Stop()

		for id, client := range c.clients {
			client.close(0)
			delete(c.clients, id)
			metrics.HubClients.Dec()
		}
		c.counted()

		select {
		case c.cleanup <- c:
		default:
			c.logger.Warn().Msg("Hub cleanup channel full, canvas will be replaced lazily")
		}
		close(c.done)

		c.logger.Info().Msg("Canvas loop finished")
	}()

	for {
		select {
		case client := <-c.register:
			ok := c.add(client)
			client.admitted <- ok
			if ok {
				stopTimer(timer)
			}

		case client := <-c.unregister:
			c.remove(client)
			if len(c.clients) == 0 {
				stopTimer(timer)
				timer.Reset(c.inactivity)
			}

		case r := <-c.relay:
			c.fanout(r)

		case <-timer.C:
			c.logger.Info().Dur("timeout", c.inactivity).Msg("Canvas inactive, shutting down")
			return

		case <-c.stop:
			c.logger.Info().Msg("Canvas stop requested")
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// add registers client, replacing an older connection of the same user.
// A rejected client was never registered; the caller closes it.
func (c *Canvas) add(client *Client) bool {
	id := client.identity.ID

	if existing, ok := c.clients[id]; ok {
		c.logger.Warn().Str("user_id", id).Msg("User already connected, replacing old connection")
		existing.close(CloseSessionKicked)
		delete(c.clients, id)
		metrics.HubClients.Dec()
	} else if c.MaxClients > 0 && len(c.clients) >= c.MaxClients {
		c.logger.Warn().Str("user_id", id).Int("max_clients", c.MaxClients).Msg("Canvas is full, client rejected")
		return false
	}

	c.clients[id] = client
	c.counted()
	metrics.HubClients.Inc()
	c.logger.Info().Str("user_id", id).Int("total_users", len(c.clients)).Msg("Client joined canvas")

	c.broadcastRoster()
	return true
}

// remove drops client unless it was already replaced.
func (c *Canvas) remove(client *Client) {
	id := client.identity.ID

	current, ok := c.clients[id]
	if !ok || current != client {
		c.logger.Debug().Str("user_id", id).Msg("Ignoring unregister for stale connection")
		client.close(0)
		return
	}

	delete(c.clients, id)
	c.counted()
	client.close(0)
	metrics.HubClients.Dec()
	c.logger.Info().Str("user_id", id).Int("total_users", len(c.clients)).Msg("Client left canvas")

	c.broadcastRoster()
}

// broadcastRoster sends the full roster to every client.
func (c *Canvas) broadcastRoster() {
	roster := make(protocol.Roster, len(c.clients))
	for id, client := range c.clients {
		roster[id] = protocol.RosterEntry{
			ID:          protocol.ID(client.identity.ID),
			Username:    client.identity.Username,
			DisplayName: client.identity.DisplayName,
			Color:       client.identity.CursorColor(),
			Role:        client.identity.Role,
		}
	}

	frame, err := protocol.Encode(protocol.Users{Roster: roster})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode roster")
		return
	}
	c.fanout(relayed{event: protocol.EventUsers, frame: frame})
}

// fanout queues r on every client but the sender. Clients whose queue is
// full are dropped.
func (c *Canvas) fanout(r relayed) {
	var slow []*Client
	for _, client := range c.clients {
		if client == r.from {
			continue
		}
		if !client.enqueue(r.frame) {
			slow = append(slow, client)
		}
	}
	metrics.HubRelayedTotal.WithLabelValues(string(r.event)).Inc()

	for _, client := range slow {
		c.logger.Warn().Str("user_id", client.identity.ID).Msg("Client send queue full, unregistering")
		delete(c.clients, client.identity.ID)
		client.close(0)
		metrics.HubClients.Dec()
	}
	if len(slow) > 0 {
		c.counted()
		c.broadcastRoster()
	}
}

// Size returns the number of connected users.
func (c *Canvas) Size() int {
	return int(c.size.Load())
}

// IsFull reports whether a new user would be rejected.
func (c *Canvas) IsFull() bool {
	return c.MaxClients > 0 && c.Size() >= c.MaxClients
}

// counted publishes len(clients) after every membership change.
func (c *Canvas) counted() {
	c.size.Store(int32(len(c.clients)))
}
