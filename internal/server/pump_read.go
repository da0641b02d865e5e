package server

import (
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/adred-codev/ws-gateway/internal/hub"
	"github.com/adred-codev/ws-gateway/internal/monitoring"
	"github.com/adred-codev/ws-gateway/internal/protocol"
)

// A single malformed frame gets a typed error reply; this many consecutive
// ones is a fatal decode fault and ends the connection.
const maxConsecutiveDecodeFaults = 5

// readPump is the receiver: it reads one frame at a time, decodes it into an
// envelope and performs a non-blocking insert into the connection's bounded
// queue. It never waits for queue space; a slow processor costs dropped
// envelopes, not a stalled transport read loop. Ends on transport disconnect
// or a fatal decode fault, moving the connection to Disconnecting.
func (s *Server) readPump(client *wsClient, conn *hub.Conn) {
	defer monitoring.RecoverPanic(s.logger, "readPump", map[string]any{
		"connection_id": conn.ID(),
	})

	reason := "read_error"
	defer func() {
		conn.Advance(hub.StateDisconnecting)
		s.teardown(client, conn, reason)
	}()

	decodeFaults := 0

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		msg, op, err := wsutil.ReadClientData(client.conn)
		if err != nil {
			// Covers remote close, resets and read deadline expiry.
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(pongWait))

		conn.Touch(len(msg))
		monitoring.MessagesReceived.Inc()
		monitoring.BytesReceived.Add(float64(len(msg)))

		switch op {
		case ws.OpText:
			if !s.msgLimiter.Allow(conn.ID()) {
				monitoring.RateLimitedMessages.Inc()
				s.logger.Warn().
					Str("connection_id", conn.ID()).
					Msg("Client rate limited")
				s.reply(conn, protocol.NewError(protocol.CodeRateLimitExceeded, "too many messages, slow down"))
				continue
			}

			env, err := protocol.Decode(msg)
			if err != nil {
				decodeFaults++
				if decodeFaults >= maxConsecutiveDecodeFaults {
					reason = "decode_fault"
					s.logger.Warn().
						Str("connection_id", conn.ID()).
						Int("consecutive_faults", decodeFaults).
						Msg("Fatal decode fault, closing connection")
					return
				}
				s.reply(conn, protocol.NewError(protocol.CodeMalformedPayload, "frame is not a valid envelope"))
				continue
			}
			decodeFaults = 0

			if !conn.Enqueue(env) {
				monitoring.MessagesDropped.Inc()
				s.logger.Debug().
					Str("connection_id", conn.ID()).
					Str("type", env.Type).
					Msg("Inbox full, envelope dropped")
			}

		case ws.OpClose:
			reason = "client_close"
			return

		case ws.OpPing:
			// gobwas answers pings in ReadClientData's control handling.
		}
	}
}

// reply is a best-effort send of a transport-level error envelope.
func (s *Server) reply(conn *hub.Conn, env protocol.Envelope) {
	if err := conn.Send(env); err != nil {
		s.logger.Debug().
			Str("connection_id", conn.ID()).
			Err(err).
			Msg("Error reply not delivered")
	}
}
