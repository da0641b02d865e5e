package hub

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ws-gateway/internal/monitoring"
	"github.com/adred-codev/ws-gateway/internal/protocol"
)

// Broadcaster fans one envelope out to a membership set: snapshot the
// targets, dispatch one send per member concurrently, wait for all, tally
// successes. A member's send failure is counted as a non-delivery and never
// cancels or delays the other members. There is no ordering guarantee across
// members; per-connection order is preserved by each connection's outbound
// queue.
type Broadcaster struct {
	registry *Registry
	groups   *GroupIndex
	logger   zerolog.Logger
}

func NewBroadcaster(registry *Registry, groups *GroupIndex, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		groups:   groups,
		logger:   logger.With().Str("component", "broadcaster").Logger(),
	}
}

// BroadcastToGroup delivers env to every member of group, returning the
// delivered count.
func (b *Broadcaster) BroadcastToGroup(group string, env protocol.Envelope) int {
	return b.fanOut(b.groups.Members(group), env)
}

// BroadcastToAll delivers env to every registered connection, returning the
// delivered count.
func (b *Broadcaster) BroadcastToAll(env protocol.Envelope) int {
	return b.fanOut(b.registry.IDs(), env)
}

func (b *Broadcaster) fanOut(ids []string, env protocol.Envelope) int {
	if len(ids) == 0 {
		return 0
	}

	var delivered int64
	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		go func(id string) {
			defer wg.Done()
			defer monitoring.RecoverPanic(b.logger, "broadcast_send", map[string]any{
				"connection_id": id,
			})
			if b.sendOne(id, env) {
				atomic.AddInt64(&delivered, 1)
			}
		}(id)
	}
	wg.Wait()

	return int(atomic.LoadInt64(&delivered))
}

// sendOne resolves one member and attempts the send. A removed connection
// resolves to not-found and counts as a non-delivery.
func (b *Broadcaster) sendOne(id string, env protocol.Envelope) bool {
	conn, ok := b.registry.Lookup(id)
	if !ok {
		monitoring.BroadcastFailures.Inc()
		return false
	}
	if err := conn.Send(env); err != nil {
		monitoring.BroadcastFailures.Inc()
		b.logger.Debug().
			Str("connection_id", id).
			Str("type", env.Type).
			Err(err).
			Msg("Broadcast send failed")
		return false
	}
	monitoring.BroadcastDeliveries.Inc()
	return true
}
