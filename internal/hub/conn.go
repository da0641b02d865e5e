// Package hub is the connection-coordination core: it owns connection
// lifecycle, named group membership, concurrent fan-out broadcast, the
// per-connection processing pipeline, and the heartbeat scheduler. It is
// transport-agnostic; the websocket layer plugs in through Sender.
package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/adred-codev/ws-gateway/internal/protocol"
)

// State is a connection lifecycle phase. Transitions are monotonic:
// Connecting → Connected → Disconnecting → Disconnected, never backward.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ErrSendClosed is returned by senders whose transport has gone away.
var ErrSendClosed = errors.New("send on closed connection")

// Sender delivers one encoded envelope to a connection's transport. It must
// be safe for concurrent use and must return an error rather than block
// indefinitely; per-connection FIFO is the sender's responsibility.
type Sender interface {
	Send(payload []byte) error
}

// Counters is a snapshot of a connection's traffic counters.
type Counters struct {
	MessagesProcessed int64
	MessagesDropped   int64
	BytesSent         int64
	BytesReceived     int64
}

// Conn is one persistent connection. It is created by the transport on
// accept, exclusively owned by the Registry, and referenced elsewhere only
// by identifier.
type Conn struct {
	id        string
	createdAt time.Time
	sender    Sender

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos

	// Bounded FIFO between receiver and processor. Insert never blocks;
	// overflow drops the newest envelope.
	inbox chan protocol.Envelope

	// Closed when the connection leaves Connected; wakes the processor.
	disconnecting chan struct{}
	discOnce      sync.Once

	metaMu   sync.RWMutex
	metadata map[string]string

	msgsProcessed atomic.Int64
	msgsDropped   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

// NewConn creates a connection in the Connecting state with a bounded inbox
// of the given capacity.
func NewConn(sender Sender, queueCapacity int) *Conn {
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	c := &Conn{
		id:            xid.New().String(),
		createdAt:     time.Now(),
		sender:        sender,
		inbox:         make(chan protocol.Envelope, queueCapacity),
		disconnecting: make(chan struct{}),
		metadata:      make(map[string]string),
	}
	c.lastActivity.Store(c.createdAt.UnixNano())
	return c
}

// ID returns the connection's opaque identifier.
func (c *Conn) ID() string { return c.id }

// CreatedAt returns when the connection was accepted.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Advance moves the connection to next if that is a forward transition.
// Returns false (no change) for backward or same-state transitions.
func (c *Conn) Advance(next State) bool {
	for {
		cur := c.state.Load()
		if int32(next) <= cur {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(next)) {
			if next >= StateDisconnecting {
				c.discOnce.Do(func() { close(c.disconnecting) })
			}
			return true
		}
	}
}

// Disconnecting is closed once the connection has left Connected.
func (c *Conn) Disconnecting() <-chan struct{} { return c.disconnecting }

// Touch records inbound activity.
func (c *Conn) Touch(bytes int) {
	c.lastActivity.Store(time.Now().UnixNano())
	c.bytesReceived.Add(int64(bytes))
}

// LastActivity returns the time of the most recent inbound frame.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Enqueue performs a non-blocking insert into the bounded inbox. On a full
// queue the envelope is dropped and counted; the receiver never waits for
// queue space.
func (c *Conn) Enqueue(env protocol.Envelope) bool {
	select {
	case c.inbox <- env:
		return true
	default:
		c.msgsDropped.Add(1)
		return false
	}
}

// Send encodes and delivers one envelope over the transport.
func (c *Conn) Send(env protocol.Envelope) error {
	if c.State() >= StateDisconnecting {
		return ErrSendClosed
	}
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	if err := c.sender.Send(payload); err != nil {
		return err
	}
	c.bytesSent.Add(int64(len(payload)))
	return nil
}

// SetMeta stores a free-form metadata entry.
func (c *Conn) SetMeta(key, value string) {
	c.metaMu.Lock()
	c.metadata[key] = value
	c.metaMu.Unlock()
}

// Meta reads a metadata entry.
func (c *Conn) Meta(key string) (string, bool) {
	c.metaMu.RLock()
	v, ok := c.metadata[key]
	c.metaMu.RUnlock()
	return v, ok
}

// Counters returns a snapshot of the traffic counters.
func (c *Conn) Counters() Counters {
	return Counters{
		MessagesProcessed: c.msgsProcessed.Load(),
		MessagesDropped:   c.msgsDropped.Load(),
		BytesSent:         c.bytesSent.Load(),
		BytesReceived:     c.bytesReceived.Load(),
	}
}
