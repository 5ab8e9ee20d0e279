package presence

import "context"

// Dialer opens a realtime session to the hub. The returned Session is usable
// immediately; connection progress is reported through Events. Dial returns
// an error only when no attempt could be started at all.
type Dialer interface {
	Dial(ctx context.Context, token string, events Events) (Session, error)
}

// Events receives transport callbacks. Implementations must not block.
type Events interface {
	// OnConnect fires after the transport handshake succeeded.
	OnConnect()

	// OnDisconnect fires when the live connection is lost. retrying is false
	// once the transport has given up.
	OnDisconnect(retrying bool)

	// OnMessage delivers one inbound frame.
	OnMessage(frame []byte)
}

// Session is a live transport session.
type Session interface {
	// Send queues one frame. It never blocks on the network.
	Send(frame []byte) error

	// Close stops the session and any pending reconnect attempts.
	Close() error
}
