// Package feed bridges an upstream NATS subject tree into group broadcasts:
// a message published on <root>.<group> is fanned out to that group's
// members. The bridge is optional; the gateway runs without it.
package feed

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adred-codev/ws-gateway/internal/hub"
	"github.com/adred-codev/ws-gateway/internal/protocol"
)

// upstreamSender identifies bridge-originated broadcasts in relay envelopes.
const upstreamSender = "upstream"

// Bridge consumes an upstream subject tree and rebroadcasts into the hub.
type Bridge struct {
	nc          *nats.Conn
	sub         *nats.Subscription
	broadcaster *hub.Broadcaster
	subjectRoot string
	logger      zerolog.Logger
}

// NewBridge connects to NATS. subjectRoot is the prefix under which group
// subjects live, e.g. "gateway.feed" → "gateway.feed.lobby" targets "lobby".
func NewBridge(url, subjectRoot string, broadcaster *hub.Broadcaster, logger zerolog.Logger) (*Bridge, error) {
	log := logger.With().Str("component", "feed").Logger()

	nc, err := nats.Connect(url,
		nats.Name("ws-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Bridge{
		nc:          nc,
		broadcaster: broadcaster,
		subjectRoot: subjectRoot,
		logger:      log,
	}, nil
}

// Start subscribes to the subject tree.
func (b *Bridge) Start() error {
	sub, err := b.nc.Subscribe(b.subjectRoot+".>", b.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s.>: %w", b.subjectRoot, err)
	}
	b.sub = sub
	b.logger.Info().Str("subject", b.subjectRoot+".>").Msg("Feed bridge started")
	return nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	group := b.extractGroup(msg.Subject)
	if group == "" {
		// Misconfigured publisher; nothing to target.
		return
	}
	delivered := b.broadcaster.BroadcastToGroup(group,
		protocol.NewBroadcastRelay(group, upstreamSender, msg.Data))
	b.logger.Debug().
		Str("subject", msg.Subject).
		Str("group", group).
		Int("delivered", delivered).
		Msg("Feed message broadcast")
}

// extractGroup maps "<root>.<group...>" to the group name; nested tokens
// stay dotted ("gateway.feed.a.b" → "a.b").
func (b *Bridge) extractGroup(subject string) string {
	prefix := b.subjectRoot + "."
	if !strings.HasPrefix(subject, prefix) {
		return ""
	}
	return strings.TrimPrefix(subject, prefix)
}

// Stop unsubscribes and drains the connection.
func (b *Bridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		_ = b.nc.Drain()
	}
	b.logger.Info().Msg("Feed bridge stopped")
}
