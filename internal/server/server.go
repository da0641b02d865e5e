// Package server is the HTTP and WebSocket transport around the hub: the
// gated request surface, the upgrade handler, and the per-connection read
// and write pumps.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ws-gateway/internal/config"
	"github.com/adred-codev/ws-gateway/internal/gate"
	"github.com/adred-codev/ws-gateway/internal/hub"
	"github.com/adred-codev/ws-gateway/internal/limits"
	"github.com/adred-codev/ws-gateway/internal/monitoring"
)

const (
	// Time allowed to write one frame to the peer.
	writeWait = 5 * time.Second

	// Time allowed between inbound frames before the connection is
	// considered dead.
	pongWait = 30 * time.Second

	// Transport-level ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Grace period for draining live connections during shutdown.
	shutdownGrace = 30 * time.Second
)

// Server ties the gate, header injector and hub to the network.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	hub        *hub.Hub
	gate       *gate.Gate
	injector   *gate.HeaderInjector
	guard      *limits.ResourceGuard
	msgLimiter *limits.MessageLimiter

	listener   net.Listener
	httpServer *http.Server

	// Live transports by connection id, so shutdown can close sockets and
	// not just flip hub state.
	clients sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shuttingDown atomic.Bool
	activeConns  int64 // atomic; feeds the resource guard
}

// New assembles a server from its injected components. Component instances
// are explicit so tests can swap collaborators; there is no package-level
// state beyond the metrics registry.
func New(cfg *config.Config, logger zerolog.Logger, h *hub.Hub, g *gate.Gate, injector *gate.HeaderInjector) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		logger:     logger.With().Str("component", "server").Logger(),
		hub:        h,
		gate:       g,
		injector:   injector,
		msgLimiter: limits.NewMessageLimiter(cfg.InboundMsgRate, cfg.InboundMsgBurst),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.guard = limits.NewResourceGuard(limits.ResourceGuardConfig{
		MaxConnections:     cfg.MaxConnections,
		CPURejectThreshold: cfg.CPURejectThreshold,
		Logger:             logger,
	}, &s.activeConns)
	return s
}

// Start binds the listener and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", monitoring.MetricsHandler())

	// Outermost: header injection, so rejections carry the security headers
	// and request id too. Then the gate, then the routes.
	handler := s.injector.Middleware(s.gate.Middleware(mux))

	s.httpServer = &http.Server{
		Handler:        handler,
		ReadTimeout:    s.cfg.HTTPReadTimeout,
		WriteTimeout:   s.cfg.HTTPWriteTimeout,
		IdleTimeout:    s.cfg.HTTPIdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	// The websocket upgrade hijacks the connection; per-request write
	// deadlines would kill long-lived streams.
	s.httpServer.WriteTimeout = 0

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server accept loop error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.RunHeartbeat(s.ctx)
	}()

	s.guard.StartMonitoring(s.ctx, 15*time.Second)

	s.logger.Info().
		Str("address", s.cfg.Addr).
		Int("max_connections", s.cfg.MaxConnections).
		Msg("Server listening")
	return nil
}

// Shutdown stops accepting connections, drains live ones within the grace
// period, then force-closes the remainder.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Initiating graceful shutdown")
	s.shuttingDown.Store(true)

	if s.listener != nil {
		s.listener.Close()
	}

	drainTimer := time.NewTimer(shutdownGrace)
	checkTicker := time.NewTicker(time.Second)
	defer drainTimer.Stop()
	defer checkTicker.Stop()

	for {
		remaining := atomic.LoadInt64(&s.activeConns)
		if remaining == 0 {
			s.logger.Info().Msg("All connections drained gracefully")
			break
		}
		select {
		case <-drainTimer.C:
			s.logger.Warn().
				Int64("remaining_connections", remaining).
				Msg("Grace period expired, force closing remaining connections")
			s.forceCloseAll()
		case <-checkTicker.C:
			s.logger.Info().
				Int64("remaining_connections", remaining).
				Msg("Waiting for connections to drain")
			continue
		}
		break
	}

	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Graceful shutdown completed")
	return nil
}

// forceCloseAll closes every live transport. Closing the client wakes its
// write pump, which emits the close frame and closes the socket; the read
// pump then errors out and runs the normal teardown path.
func (s *Server) forceCloseAll() {
	for _, id := range s.hub.Registry.IDs() {
		if c, ok := s.hub.Registry.Lookup(id); ok {
			c.Advance(hub.StateDisconnecting)
		}
		if v, ok := s.clients.Load(id); ok {
			v.(*wsClient).Close()
		}
	}
}

// handleHealth reports liveness plus the counts an operator checks first.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if s.shuttingDown.Load() {
		status = "draining"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"connections": s.hub.Registry.Count(),
		"groups":      s.hub.Groups.GroupCount(),
		"cpu_percent": s.guard.CurrentCPU(),
	})
}
