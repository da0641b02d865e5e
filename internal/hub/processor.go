package hub

import (
	"encoding/json"
	"time"

	"github.com/adred-codev/ws-gateway/internal/monitoring"
	"github.com/adred-codev/ws-gateway/internal/protocol"
)

// RunProcessor consumes a connection's inbox in FIFO order and interprets
// control envelopes. It runs for the connection's Connected lifetime and
// ends once the connection has left Connected and the inbox is drained or
// the drain timeout elapses. Intended to run as a goroutine paired with the
// transport's receiver.
func (h *Hub) RunProcessor(c *Conn) {
	defer monitoring.RecoverPanic(h.logger, "processor", map[string]any{
		"connection_id": c.ID(),
	})

	for {
		select {
		case env := <-c.inbox:
			h.handleEnvelope(c, env)
		case <-c.Disconnecting():
			h.drain(c)
			return
		}
	}
}

// drain empties what remains in the inbox after disconnect, bounded by the
// drain timeout.
func (h *Hub) drain(c *Conn) {
	deadline := time.Now().Add(h.cfg.DrainTimeout)
	for {
		select {
		case env := <-c.inbox:
			h.handleEnvelope(c, env)
		default:
			return
		}
		if time.Now().After(deadline) {
			h.logger.Warn().
				Str("connection_id", c.ID()).
				Int("remaining", len(c.inbox)).
				Msg("Drain timeout elapsed with envelopes remaining")
			return
		}
	}
}

func (h *Hub) handleEnvelope(c *Conn, env protocol.Envelope) {
	c.msgsProcessed.Add(1)
	monitoring.MessagesProcessed.Inc()

	switch env.Type {
	case protocol.TypeJoinGroup:
		var p protocol.GroupPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Group == "" {
			h.reply(c, protocol.NewError(protocol.CodeMalformedPayload, "join_group requires a group name"))
			return
		}
		if !h.Groups.Join(c.ID(), p.Group) {
			h.reply(c, protocol.NewError(protocol.CodeGroupFull, "group is at capacity"))
			return
		}
		h.reply(c, protocol.NewJoinedGroup(p.Group))

	case protocol.TypeLeaveGroup:
		var p protocol.GroupPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Group == "" {
			h.reply(c, protocol.NewError(protocol.CodeMalformedPayload, "leave_group requires a group name"))
			return
		}
		h.Groups.Leave(c.ID(), p.Group)
		h.reply(c, protocol.NewLeftGroup(p.Group))

	case protocol.TypeBroadcast:
		var p protocol.BroadcastPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.reply(c, protocol.NewError(protocol.CodeMalformedPayload, "broadcast payload is not valid JSON"))
			return
		}
		relay := protocol.NewBroadcastRelay(p.Group, c.ID(), p.Data)
		var delivered int
		if p.Group != "" {
			delivered = h.Broadcaster.BroadcastToGroup(p.Group, relay)
		} else {
			delivered = h.Broadcaster.BroadcastToAll(relay)
		}
		h.logger.Debug().
			Str("connection_id", c.ID()).
			Str("group", p.Group).
			Int("delivered", delivered).
			Msg("Client broadcast dispatched")

	case protocol.TypePing:
		h.reply(c, protocol.NewPong(time.Now()))

	default:
		h.reply(c, protocol.NewEcho(c.ID(), env.Type, env.Data, time.Now()))
	}
}

// reply is best-effort: a failed control reply is logged, never fatal to the
// connection.
func (h *Hub) reply(c *Conn, env protocol.Envelope) {
	if err := c.Send(env); err != nil {
		h.logger.Debug().
			Str("connection_id", c.ID()).
			Str("type", env.Type).
			Err(err).
			Msg("Reply send failed")
	}
}
