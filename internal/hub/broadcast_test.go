package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/ws-gateway/internal/protocol"
)

func newTestHub(maxGroupMembers int) *Hub {
	return New(Config{
		QueueCapacity:     8,
		MaxGroupMembers:   maxGroupMembers,
		HeartbeatInterval: time.Hour,
		DrainTimeout:      100 * time.Millisecond,
	}, zerolog.Nop())
}

func attachConn(h *Hub, sender Sender) *Conn {
	c := h.NewConn(sender)
	h.Attach(c)
	return c
}

func TestBroadcaster_GroupFanOutIsolatesFailures(t *testing.T) {
	h := newTestHub(0)

	good1, good2 := &captureSender{}, &captureSender{}
	bad := &captureSender{err: fmt.Errorf("closed transport")}

	c1 := attachConn(h, good1)
	c2 := attachConn(h, bad)
	c3 := attachConn(h, good2)
	for _, c := range []*Conn{c1, c2, c3} {
		require.True(t, h.Groups.Join(c.ID(), "room"))
	}

	delivered := h.Broadcaster.BroadcastToGroup("room", protocol.NewHeartbeat(time.Now(), 3))

	assert.Equal(t, 2, delivered, "one failing member must not affect the tally of the others")
	assert.Equal(t, 1, good1.countByType(protocol.TypeHeartbeat))
	assert.Equal(t, 1, good2.countByType(protocol.TypeHeartbeat))
}

func TestBroadcaster_EmptyGroup(t *testing.T) {
	h := newTestHub(0)
	assert.Zero(t, h.Broadcaster.BroadcastToGroup("nobody", protocol.NewPong(time.Now())))
}

func TestBroadcaster_RemovedConnCountsAsNonDelivery(t *testing.T) {
	h := newTestHub(0)

	sender := &captureSender{}
	c := attachConn(h, sender)
	require.True(t, h.Groups.Join(c.ID(), "room"))

	// Simulate a membership snapshot taken before an abrupt removal: ask
	// the broadcaster to send to an identifier no longer registered.
	h.Registry.mu.Lock()
	delete(h.Registry.conns, c.ID())
	h.Registry.mu.Unlock()

	delivered := h.Broadcaster.fanOut([]string{c.ID()}, protocol.NewPong(time.Now()))
	assert.Zero(t, delivered)
	assert.Empty(t, sender.sent())
}

func TestBroadcaster_BroadcastToAll(t *testing.T) {
	h := newTestHub(0)

	senders := []*captureSender{{}, {}, {}}
	for _, s := range senders {
		attachConn(h, s)
	}

	delivered := h.Broadcaster.BroadcastToAll(protocol.NewHeartbeat(time.Now(), 3))

	assert.Equal(t, 3, delivered)
	for _, s := range senders {
		assert.Equal(t, 1, s.countByType(protocol.TypeHeartbeat))
	}
}
