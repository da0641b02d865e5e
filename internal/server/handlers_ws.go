package server

import (
	"net/http"
	"sync/atomic"

	"github.com/gobwas/ws"

	"github.com/adred-codev/ws-gateway/internal/auth"
	"github.com/adred-codev/ws-gateway/internal/gate"
	"github.com/adred-codev/ws-gateway/internal/hub"
	"github.com/adred-codev/ws-gateway/internal/monitoring"
)

// handleWebSocket admits, upgrades and registers one persistent connection,
// then starts its three tasks: receiver, write pump, and processor.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := gate.ClientIP(r)

	if s.shuttingDown.Load() {
		monitoring.ConnectionsRejected.WithLabelValues("shutting_down").Inc()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if accept, reason := s.guard.ShouldAccept(); !accept {
		s.logger.Warn().
			Str("client_ip", clientIP).
			Str("reason", reason).
			Int64("current_connections", atomic.LoadInt64(&s.activeConns)).
			Msg("Connection rejected by resource guard")
		monitoring.ConnectionsRejected.WithLabelValues(reason).Inc()
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}

	// The upgrade hijacks the connection and writes its own 101 response, so
	// headers set upstream (security headers, request id) must ride along
	// explicitly or they never reach the wire.
	upgrader := ws.HTTPUpgrader{Header: w.Header()}
	netConn, _, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		monitoring.ConnectionsRejected.WithLabelValues("upgrade_failed").Inc()
		s.logger.Error().
			Err(err).
			Str("client_ip", clientIP).
			Msg("WebSocket upgrade failed")
		return
	}

	client := newWSClient(netConn, s.cfg.SendBuffer)
	conn := s.hub.NewConn(client)
	conn.SetMeta("remote_addr", clientIP)
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		conn.SetMeta("user_id", claims.UserID)
	}
	if reqID, ok := gate.RequestIDFromContext(r.Context()); ok {
		conn.SetMeta("request_id", reqID)
	}

	// Upgrade complete: the connection is Connected and owned by the
	// registry from here on.
	s.hub.Attach(conn)
	s.clients.Store(conn.ID(), client)
	atomic.AddInt64(&s.activeConns, 1)

	s.logger.Info().
		Str("client_ip", clientIP).
		Str("connection_id", conn.ID()).
		Int64("current_connections", atomic.LoadInt64(&s.activeConns)).
		Msg("Client connected")

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.writePump(client, conn)
	}()
	go func() {
		defer s.wg.Done()
		s.hub.RunProcessor(conn)
	}()
	go func() {
		defer s.wg.Done()
		s.readPump(client, conn)
	}()
}

// teardown runs exactly once per connection, from the receiver's exit path.
// Registry removal happens synchronously with group cleanup inside Detach.
func (s *Server) teardown(client *wsClient, conn *hub.Conn, reason string) {
	if client.SlowClosed() {
		reason = "slow_client"
	}
	client.Close()
	s.clients.Delete(conn.ID())
	s.hub.Detach(conn, reason)
	s.msgLimiter.Remove(conn.ID())
	atomic.AddInt64(&s.activeConns, -1)
}
