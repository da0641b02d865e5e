package server

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/adred-codev/ws-gateway/internal/hub"
)

// errSendBufferFull reports a slow consumer: the outbound queue had no space
// for a non-blocking send.
var errSendBufferFull = errors.New("send buffer full")

// slowClientStrikes is how many consecutive full-buffer sends a client gets
// before it is disconnected for being too slow.
const slowClientStrikes = 3

// wsClient is the transport half of a connection: it owns the TCP socket and
// the outbound FIFO consumed by the write pump. It implements hub.Sender.
type wsClient struct {
	conn net.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	strikes    atomic.Int32
	slowClosed atomic.Bool
}

func newWSClient(conn net.Conn, sendBuffer int) *wsClient {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues one encoded envelope for the write pump without ever blocking
// the caller. Per-connection FIFO comes from the channel; a full buffer is a
// strike, and three consecutive strikes mark the client too slow to keep.
func (c *wsClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return hub.ErrSendClosed
	default:
	}

	select {
	case c.send <- payload:
		c.strikes.Store(0)
		return nil
	case <-c.done:
		return hub.ErrSendClosed
	default:
		if c.strikes.Add(1) >= slowClientStrikes {
			c.slowClosed.Store(true)
			c.Close()
		}
		return errSendBufferFull
	}
}

// Close wakes the write pump, which emits the close frame and closes the
// socket. Safe to call from any goroutine, any number of times.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SlowClosed reports whether the client was closed for being too slow.
func (c *wsClient) SlowClosed() bool { return c.slowClosed.Load() }
