package server

import (
	"bufio"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/adred-codev/ws-gateway/internal/hub"
	"github.com/adred-codev/ws-gateway/internal/monitoring"
)

// writePump drains a client's outbound queue onto the socket, batching
// queued frames through one buffered writer to cut syscalls, and keeps the
// connection alive with transport pings. It is the only goroutine writing to
// the socket, which is what preserves per-connection FIFO.
func (s *Server) writePump(client *wsClient, conn *hub.Conn) {
	defer monitoring.RecoverPanic(s.logger, "writePump", map[string]any{
		"connection_id": conn.ID(),
	})

	writer := bufio.NewWriter(client.conn)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("Failed to write message")
				return
			}
			monitoring.BytesSent.Add(float64(len(message)))

			// Batch whatever else is already queued before flushing.
			n := len(client.send)
			for i := 0; i < n; i++ {
				message = <-client.send
				if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
					s.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("Failed to write message")
					return
				}
				monitoring.BytesSent.Add(float64(len(message)))
			}
			if err := writer.Flush(); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("Failed to flush writer")
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(client.conn, ws.OpPing, nil); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("Failed to send ping")
				return
			}

		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			status := ws.StatusNormalClosure
			text := ""
			if client.SlowClosed() {
				status = ws.StatusPolicyViolation
				text = "client too slow to consume messages"
			}
			body := ws.NewCloseFrameBody(status, text)
			if err := ws.WriteFrame(client.conn, ws.NewCloseFrame(body)); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("Failed to write close frame")
			}
			return
		}
	}
}
