package presence

import (
	"context"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/metrics"
	"comfycollab/internal/pkg/randx"
)

const subscriberBuffer = 16

const allChanges = ChangeCursors | ChangeSelections | ChangeRoster | ChangeConnection

// Config tunes a Channel. Zero fields take the package defaults.
type Config struct {
	SweepInterval time.Duration
	CursorTTL     time.Duration
	SelectionTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.CursorTTL <= 0 {
		c.CursorTTL = DefaultCursorTTL
	}
	if c.SelectionTTL <= 0 {
		c.SelectionTTL = DefaultSelectionTTL
	}
	return c
}

// Option configures a Channel.
type Option func(*Channel)

// WithConfig overrides the sweep interval and TTLs.
func WithConfig(cfg Config) Option {
	return func(c *Channel) { c.cfg = cfg.withDefaults() }
}

// WithClock replaces time.Now for lastSeen stamps and sweeps.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

// WithWorkflowSink registers the receiver of workflow_change notifications.
func WithWorkflowSink(sink func(WorkflowNotice)) Option {
	return func(c *Channel) { c.workflowSink = sink }
}

// WithoutSweeper disables the background sweeper. Callers drive eviction
// through Sweep.
func WithoutSweeper() Option {
	return func(c *Channel) { c.manualSweep = true }
}

type markKey struct {
	kind   Kind
	userID string
}

// Channel is the single realtime presence session of a client process.
// All state below mu is written by the transport callbacks, the sweeper and
// the lifecycle methods, and read through snapshots.
type Channel struct {
	dialer       Dialer
	cfg          Config
	now          func() time.Time
	workflowSink func(WorkflowNotice)
	manualSweep  bool
	logger       zerolog.Logger

	mu           sync.Mutex
	status       ConnectionStatus
	gen          uint64
	identity     user.Identity
	session      Session
	stop         context.CancelFunc
	stampSession string
	seq          map[Kind]uint64
	marks        map[markKey]protocol.Stamp
	cursors      *Table[CursorPresence]
	selections   *Table[SelectionPresence]
	roster       map[string]user.Identity

	subsMu  sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// NewChannel returns a disconnected channel that dials through dialer.
func NewChannel(dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer:     dialer,
		cfg:        Config{}.withDefaults(),
		now:        time.Now,
		logger:     logx.Component("presence"),
		seq:        make(map[Kind]uint64),
		marks:      make(map[markKey]protocol.Stamp),
		cursors:    NewTable[CursorPresence](),
		selections: NewTable[SelectionPresence](),
		roster:     make(map[string]user.Identity),
		subs:       make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect binds the channel to identity and opens a session authenticated
// with token. Any previous session is torn down first. ctx bounds the
// lifetime of the session, not just the dial.
//
// Connect never fails: a refused or impossible dial yields Disconnected and
// the caller simply sees no remote presence.
func (c *Channel) Connect(ctx context.Context, identity user.Identity, token string) ConnectionState {
	c.mu.Lock()
	prev, prevStop := c.detachLocked()

	if !identity.Valid() || token == "" {
		c.mu.Unlock()
		release(prev, prevStop)
		c.logger.Warn().Str("user_id", identity.ID).Msg("Presence connect skipped: no identity or token")
		c.notify(allChanges)
		return ConnectionState{Status: Disconnected}
	}

	runCtx, stop := context.WithCancel(ctx)
	c.identity = identity
	c.status = Connecting
	c.stop = stop
	c.stampSession = randx.SessionID()
	clear(c.seq)
	gen := c.gen
	c.mu.Unlock()

	release(prev, prevStop)
	c.notify(allChanges)

	// A caller cancelling ctx ends the session like Disconnect does.
	context.AfterFunc(runCtx, func() { c.onCancel(gen) })

	if !c.manualSweep {
		go NewSweeper(c.cfg.SweepInterval, c, c.now).Run(runCtx)
	}

	sess, err := c.dialer.Dial(runCtx, token, &binding{ch: c, gen: gen})

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect or a newer Connect won the race.
		state := c.stateLocked()
		c.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		return state
	}
	if err != nil {
		c.status = Disconnected
		c.stop = nil
		c.mu.Unlock()
		stop()
		metrics.PresenceConnected.Set(0)
		c.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("Presence dial failed")
		c.notify(ChangeConnection)
		return ConnectionState{Status: Disconnected}
	}
	c.session = sess
	state := c.stateLocked()
	c.mu.Unlock()

	c.logger.Debug().Str("user_id", identity.ID).Str("status", state.Status.String()).Msg("Presence session opened")
	return state
}

// Disconnect closes the session, cancels pending reconnects, stops the
// sweeper and clears all presence state. It is idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	wasLive := c.status != Disconnected
	prev, stop := c.detachLocked()
	c.mu.Unlock()

	release(prev, stop)
	if wasLive {
		c.logger.Debug().Msg("Presence disconnected")
		c.notify(allChanges)
	}
}

// onCancel tears down generation gen once its context is done. Our own
// teardown bumps gen first, so only an outside cancellation gets past the check.
func (c *Channel) onCancel(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.status == Disconnected {
		c.mu.Unlock()
		return
	}
	sess, stop := c.detachLocked()
	c.mu.Unlock()

	release(sess, stop)
	c.logger.Info().Msg("Presence context cancelled, disconnected")
	c.notify(allChanges)
}

// detachLocked invalidates the current generation and empties every table.
// The returned session and cancel func must be released without mu held.
func (c *Channel) detachLocked() (Session, context.CancelFunc) {
	c.gen++
	sess, stop := c.session, c.stop
	c.session, c.stop = nil, nil
	c.status = Disconnected
	c.stampSession = ""
	c.clearLocked()
	metrics.PresenceConnected.Set(0)
	return sess, stop
}

func (c *Channel) clearLocked() {
	c.cursors.Clear()
	c.selections.Clear()
	clear(c.roster)
	clear(c.marks)
	c.recordGaugesLocked()
}

func release(sess Session, stop context.CancelFunc) {
	if stop != nil {
		stop()
	}
	if sess != nil {
		_ = sess.Close()
	}
}

// State returns the current lifecycle snapshot.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Channel) stateLocked() ConnectionState {
	return ConnectionState{Status: c.status, Session: c.stampSession}
}

// Connected reports whether the transport is live.
func (c *Channel) Connected() bool {
	return c.State().Connected()
}

// Identity returns the identity bound by the last Connect.
func (c *Channel) Identity() user.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Cursors returns the remote cursors ordered by user id.
func (c *Channel) Cursors() []CursorPresence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors.Snapshot()
}

// Selections returns the remote selections ordered by user id.
func (c *Channel) Selections() []SelectionPresence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selections.Snapshot()
}

// Roster returns a copy of the last roster received from the hub.
func (c *Channel) Roster() map[string]user.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.roster)
}

// EmitCursor publishes the local pointer position. x and y are clamped to
// [0,1]. It is a no-op unless connected.
func (c *Channel) EmitCursor(x, y float64) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	c.emit(KindCursor, func(id user.Identity, stamp protocol.Stamp) protocol.Message {
		return protocol.CursorMove{Cursor: protocol.Cursor{
			UserID:   protocol.ID(id.ID),
			Username: id.Username,
			Color:    id.CursorColor(),
			X:        clamp01(x),
			Y:        clamp01(y),
			Stamp:    stamp,
		}}
	})
}

// EmitSelection publishes the local node selection. An empty list clears it
// for peers. It is a no-op unless connected.
func (c *Channel) EmitSelection(nodeIDs []string) {
	set := NewNodeSet(nodeIDs...)
	c.emit(KindSelection, func(id user.Identity, stamp protocol.Stamp) protocol.Message {
		ids := make([]protocol.ID, len(set))
		for i, n := range set {
			ids[i] = protocol.ID(n)
		}
		return protocol.NodeSelect{Selection: protocol.Selection{
			UserID:   protocol.ID(id.ID),
			Username: id.Username,
			Color:    id.CursorColor(),
			NodeIDs:  ids,
			Stamp:    stamp,
		}}
	})
}

// EmitWorkflowChange publishes an opaque workflow document update.
// It is a no-op unless connected.
func (c *Channel) EmitWorkflowChange(data []byte) {
	c.emit("", func(id user.Identity, _ protocol.Stamp) protocol.Message {
		return protocol.WorkflowUpdate{Workflow: protocol.Workflow{
			UserID:       protocol.ID(id.ID),
			Username:     id.Username,
			WorkflowData: data,
		}}
	})
}

// emit builds the message under mu and sends it outside the lock. kind
// selects the sequence counter; an empty kind sends no stamp.
func (c *Channel) emit(kind Kind, build func(user.Identity, protocol.Stamp) protocol.Message) {
	c.mu.Lock()
	if c.status != Connected || c.session == nil {
		c.mu.Unlock()
		return
	}
	var stamp protocol.Stamp
	if kind != "" {
		c.seq[kind]++
		stamp = protocol.Stamp{Session: c.stampSession, Seq: c.seq[kind]}
	}
	msg := build(c.identity, stamp)
	sess := c.session
	c.mu.Unlock()

	frame, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(msg.Event())).Msg("Failed to encode presence event")
		return
	}
	if err := sess.Send(frame); err != nil {
		c.logger.Debug().Err(err).Str("event", string(msg.Event())).Msg("Presence event not sent")
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// Sweep evicts cursors older than the cursor TTL and selections older than
// the selection TTL, measured at now. It returns the eviction counts.
func (c *Channel) Sweep(now time.Time) (cursors, selections int) {
	c.mu.Lock()
	evictedCursors := c.cursors.EvictOlderThan(now, c.cfg.CursorTTL)
	evictedSelections := c.selections.EvictOlderThan(now, c.cfg.SelectionTTL)
	for _, id := range evictedCursors {
		delete(c.marks, markKey{KindCursor, id})
	}
	for _, id := range evictedSelections {
		delete(c.marks, markKey{KindSelection, id})
	}
	c.recordGaugesLocked()
	c.mu.Unlock()

	cursors, selections = len(evictedCursors), len(evictedSelections)
	metrics.PresenceEvictions.WithLabelValues(string(KindCursor)).Add(float64(cursors))
	metrics.PresenceEvictions.WithLabelValues(string(KindSelection)).Add(float64(selections))

	var changed ChangeKind
	if cursors > 0 {
		changed |= ChangeCursors
	}
	if selections > 0 {
		changed |= ChangeSelections
	}
	if changed != 0 {
		c.notify(changed)
	}
	return cursors, selections
}

func (c *Channel) recordGaugesLocked() {
	metrics.PresenceRecords.WithLabelValues(string(KindCursor)).Set(float64(c.cursors.Len()))
	metrics.PresenceRecords.WithLabelValues(string(KindSelection)).Set(float64(c.selections.Len()))
}

// Subscribe returns a channel that receives a Change after every mutation.
// Changes are coalesced when the subscriber lags; cancel releases it.
func (c *Channel) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (c *Channel) notify(kind ChangeKind) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- Change{Kind: kind}:
		default:
			// subscriber is behind; it will re-read full snapshots anyway
		}
	}
}
