package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the gateway, scraped via /metrics.
var (
	// Connection metrics
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_connections_total",
		Help: "Total number of WebSocket connections established",
	})
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gw_connections_active",
		Help: "Current number of active WebSocket connections",
	})
	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gw_connections_rejected_total",
		Help: "Connection attempts rejected before upgrade, by reason",
	}, []string{"reason"})
	DisconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gw_disconnects_total",
		Help: "Total disconnections by reason",
	}, []string{"reason"})

	// Message metrics
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_messages_received_total",
		Help: "Total envelopes received from clients",
	})
	MessagesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_messages_processed_total",
		Help: "Total envelopes dequeued and processed",
	})
	MessagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_messages_dropped_total",
		Help: "Total envelopes dropped on full per-connection queues",
	})
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_bytes_received_total",
		Help: "Total bytes received from clients",
	})
	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_bytes_sent_total",
		Help: "Total bytes sent to clients",
	})

	// Broadcast metrics
	BroadcastDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_broadcast_deliveries_total",
		Help: "Total successful per-member broadcast deliveries",
	})
	BroadcastFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_broadcast_failures_total",
		Help: "Total per-member broadcast send failures",
	})
	HeartbeatsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_heartbeats_sent_total",
		Help: "Total heartbeat broadcast rounds",
	})

	// Request gate metrics
	GateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gw_gate_decisions_total",
		Help: "Request gate decisions by outcome (forwarded, unauthorized, rate_limited, public)",
	}, []string{"outcome"})
	GateFailOpen = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gw_gate_fail_open_total",
		Help: "Checks treated as passed because the collaborator malfunctioned",
	}, []string{"check"})

	// Inbound flood guard
	RateLimitedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gw_rate_limited_messages_total",
		Help: "Inbound envelopes dropped by the per-connection flood guard",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		ConnectionsRejected,
		DisconnectsTotal,
		MessagesReceived,
		MessagesProcessed,
		MessagesDropped,
		BytesReceived,
		BytesSent,
		BroadcastDeliveries,
		BroadcastFailures,
		HeartbeatsSent,
		GateDecisions,
		GateFailOpen,
		RateLimitedMessages,
	)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
