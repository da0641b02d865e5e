package hub

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ws-gateway/internal/monitoring"
)

// Config holds the hub's tunables.
type Config struct {
	QueueCapacity     int           // bounded inbox size per connection
	MaxGroupMembers   int           // 0 = unlimited
	HeartbeatInterval time.Duration // heartbeat broadcast period
	DrainTimeout      time.Duration // processor drain deadline after disconnect
}

// Hub composes the registry, group index and broadcaster, and runs the
// per-connection processor and hub-wide heartbeat.
type Hub struct {
	cfg    Config
	logger zerolog.Logger

	Groups      *GroupIndex
	Registry    *Registry
	Broadcaster *Broadcaster
}

func New(cfg Config, logger zerolog.Logger) *Hub {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	groups := NewGroupIndex(cfg.MaxGroupMembers)
	registry := NewRegistry(groups)
	return &Hub{
		cfg:         cfg,
		logger:      logger.With().Str("component", "hub").Logger(),
		Groups:      groups,
		Registry:    registry,
		Broadcaster: NewBroadcaster(registry, groups, logger),
	}
}

// NewConn creates a connection with the hub's configured queue capacity. The
// connection is not registered until Attach.
func (h *Hub) NewConn(sender Sender) *Conn {
	return NewConn(sender, h.cfg.QueueCapacity)
}

// Attach registers a connection that has completed its handshake and marks
// it Connected.
func (h *Hub) Attach(c *Conn) string {
	c.Advance(StateConnected)
	id := h.Registry.Register(c)
	monitoring.ConnectionsTotal.Inc()
	monitoring.ConnectionsActive.Set(float64(h.Registry.Count()))
	h.logger.Info().
		Str("connection_id", id).
		Int("active", h.Registry.Count()).
		Msg("Connection attached")
	return id
}

// Detach tears a connection down: state moves through Disconnecting, group
// membership is removed synchronously with the registry entry, and the
// connection ends Disconnected. Safe to call from any teardown path,
// including abrupt transport resets.
func (h *Hub) Detach(c *Conn, reason string) {
	c.Advance(StateDisconnecting)
	h.Registry.Unregister(c.ID())
	c.Advance(StateDisconnected)

	monitoring.DisconnectsTotal.WithLabelValues(reason).Inc()
	monitoring.ConnectionsActive.Set(float64(h.Registry.Count()))

	counters := c.Counters()
	h.logger.Info().
		Str("connection_id", c.ID()).
		Str("reason", reason).
		Dur("connection_duration", time.Since(c.CreatedAt())).
		Int64("messages_processed", counters.MessagesProcessed).
		Int64("messages_dropped", counters.MessagesDropped).
		Int64("bytes_sent", counters.BytesSent).
		Int64("bytes_received", counters.BytesReceived).
		Msg("Connection detached")
}
