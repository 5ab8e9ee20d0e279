package presence

import (
	"time"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
	"comfycollab/internal/pkg/metrics"
)

// Reasons an inbound frame is ignored.
const (
	dropMalformed  = "malformed"
	dropUnexpected = "unexpected"
	dropStale      = "stale_session"
	dropSelf       = "self"
	dropReordered  = "out_of_order"
)

// binding ties transport callbacks to one connection generation so that
// callbacks from a torn-down session are ignored.
type binding struct {
	ch  *Channel
	gen uint64
}

func (b *binding) OnConnect()                { b.ch.onConnect(b.gen) }
func (b *binding) OnDisconnect(retrying bool) { b.ch.onDisconnect(b.gen, retrying) }
func (b *binding) OnMessage(frame []byte)    { b.ch.receive(b.gen, frame) }

func (c *Channel) onConnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.status = Connected
	id := c.identity.ID
	c.mu.Unlock()

	metrics.PresenceConnected.Set(1)
	c.logger.Info().Str("user_id", id).Msg("Presence connected")
	c.notify(ChangeConnection)
}

// onDisconnect keeps remote records while the transport retries; the sweeper
// ages them out. Once the transport gives up the channel is fully detached.
func (c *Channel) onDisconnect(gen uint64, retrying bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if retrying {
		c.status = Connecting
		c.mu.Unlock()
		metrics.PresenceConnected.Set(0)
		c.logger.Warn().Msg("Presence connection lost, reconnecting")
		c.notify(ChangeConnection)
		return
	}

	sess, stop := c.detachLocked()
	c.mu.Unlock()
	release(sess, stop)
	c.logger.Warn().Msg("Presence connection lost, giving up")
	c.notify(allChanges)
}

func (c *Channel) receive(gen uint64, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring presence frame")
		dropped(dropMalformed)
		return
	}

	switch m := msg.(type) {
	case protocol.CursorUpdate:
		c.onCursor(gen, m.Cursor)
	case protocol.NodeUpdate:
		c.onSelection(gen, m.Selection)
	case protocol.Users:
		c.onRoster(gen, m.Roster)
	case protocol.WorkflowChange:
		c.onWorkflowChange(gen, m.Workflow)
	default:
		dropped(dropUnexpected)
	}
}

func (c *Channel) onCursor(gen uint64, m protocol.Cursor) {
	userID := string(m.UserID)

	c.mu.Lock()
	if reason := c.admitLocked(gen, KindCursor, userID, m.Stamp); reason != "" {
		c.mu.Unlock()
		dropped(reason)
		return
	}
	c.cursors.Upsert(CursorPresence{
		UserID:   userID,
		X:        clamp01(m.X),
		Y:        clamp01(m.Y),
		Username: m.Username,
		Color:    m.Color,
		LastSeen: touch(c.cursors, userID, c.now()),
	})
	c.recordGaugesLocked()
	c.mu.Unlock()

	c.notify(ChangeCursors)
}

func (c *Channel) onSelection(gen uint64, m protocol.Selection) {
	userID := string(m.UserID)
	ids := make([]string, len(m.NodeIDs))
	for i, n := range m.NodeIDs {
		ids[i] = string(n)
	}

	c.mu.Lock()
	if reason := c.admitLocked(gen, KindSelection, userID, m.Stamp); reason != "" {
		c.mu.Unlock()
		dropped(reason)
		return
	}
	c.selections.Upsert(SelectionPresence{
		UserID:   userID,
		NodeIDs:  NewNodeSet(ids...),
		Username: m.Username,
		Color:    m.Color,
		LastSeen: touch(c.selections, userID, c.now()),
	})
	c.recordGaugesLocked()
	c.mu.Unlock()

	c.notify(ChangeSelections)
}

// onRoster replaces the roster wholesale. The local user is listed like any
// other collaborator; presence tables are not touched.
func (c *Channel) onRoster(gen uint64, r protocol.Roster) {
	next := make(map[string]user.Identity, len(r))
	for key, e := range r {
		id := string(e.ID)
		if id == "" {
			id = key
		}
		next[id] = user.Identity{
			ID:          id,
			Username:    e.Username,
			DisplayName: e.DisplayName,
			Color:       e.Color,
			Role:        e.Role,
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		dropped(dropStale)
		return
	}
	c.roster = next
	c.mu.Unlock()

	c.notify(ChangeRoster)
}

func (c *Channel) onWorkflowChange(gen uint64, w protocol.Workflow) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		dropped(dropStale)
		return
	}
	self := string(w.UserID) == c.identity.ID
	sink := c.workflowSink
	c.mu.Unlock()

	if self {
		dropped(dropSelf)
		return
	}
	if sink != nil {
		sink(WorkflowNotice{
			UserID:       string(w.UserID),
			Username:     w.Username,
			WorkflowData: w.WorkflowData,
		})
	}
}

// admitLocked returns the reason to drop a presence event, or "" to apply it.
// Stamped events older than the last applied one from the same sender
// session are dropped; unstamped events are last-message-wins.
func (c *Channel) admitLocked(gen uint64, kind Kind, userID string, stamp protocol.Stamp) string {
	if gen != c.gen {
		return dropStale
	}
	if userID == c.identity.ID {
		return dropSelf
	}
	if !stamp.Ordered() {
		return ""
	}

	key := markKey{kind: kind, userID: userID}
	if last, ok := c.marks[key]; ok && last.Session == stamp.Session && stamp.Seq <= last.Seq {
		return dropReordered
	}
	c.marks[key] = stamp
	return ""
}

// touch returns now, or the previous lastSeen of userID if that is later,
// so lastSeen never moves backwards.
func touch[T record](t *Table[T], userID string, now time.Time) time.Time {
	if prev, ok := t.Get(userID); ok && prev.Seen().After(now) {
		return prev.Seen()
	}
	return now
}

func dropped(reason string) {
	metrics.PresenceDropped.WithLabelValues(reason).Inc()
}
