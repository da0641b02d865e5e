package hub

import (
	"context"
	"time"

	"github.com/adred-codev/ws-gateway/internal/monitoring"
	"github.com/adred-codev/ws-gateway/internal/protocol"
)

// RunHeartbeat broadcasts a heartbeat envelope to every live connection at
// the configured interval, skipping rounds when nothing is connected. It
// reuses the broadcaster's per-member failure isolation, so one unresponsive
// connection cannot delay delivery to the rest. Runs until ctx is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	defer monitoring.RecoverPanic(h.logger, "heartbeat", nil)

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			active := h.Registry.Count()
			if active == 0 {
				continue
			}
			delivered := h.Broadcaster.BroadcastToAll(protocol.NewHeartbeat(now, active))
			monitoring.HeartbeatsSent.Inc()
			h.logger.Debug().
				Int("active", active).
				Int("delivered", delivered).
				Msg("Heartbeat broadcast")
		}
	}
}
