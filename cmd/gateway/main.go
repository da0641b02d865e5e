package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/ws-gateway/internal/auth"
	"github.com/adred-codev/ws-gateway/internal/config"
	"github.com/adred-codev/ws-gateway/internal/feed"
	"github.com/adred-codev/ws-gateway/internal/gate"
	"github.com/adred-codev/ws-gateway/internal/hub"
	"github.com/adred-codev/ws-gateway/internal/limits"
	"github.com/adred-codev/ws-gateway/internal/monitoring"
	"github.com/adred-codev/ws-gateway/internal/server"
)

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	cfg.LogConfig(logger)

	var validator auth.Validator
	if cfg.AuthDisabled {
		logger.Warn().Msg("Authentication is DISABLED; all requests pass with an anonymous identity")
		validator = auth.NopValidator{}
	} else {
		validator = auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)
	}

	var store limits.Store
	if cfg.RedisAddr != "" {
		store = limits.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis rate-limit store")
	} else {
		store = limits.NewMemoryStore()
	}

	h := hub.New(hub.Config{
		QueueCapacity:     cfg.QueueCapacity,
		MaxGroupMembers:   cfg.MaxGroupMembers,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DrainTimeout:      cfg.DrainTimeout,
	}, logger)

	g := gate.New(gate.Config{
		Validator:   validator,
		Store:       store,
		PublicPaths: cfg.PublicPathSet(),
		Quota:       cfg.RateLimitQuota,
		Window:      cfg.Window(),
		KeyByPath:   cfg.RateLimitKeyBy == config.KeyModePath,
		Logger:      logger,
	})
	injector := gate.NewHeaderInjector(cfg.SecurityHeaders, cfg.RequestIDEnabled)

	srv := server.New(cfg, logger, h, g, injector)

	var bridge *feed.Bridge
	if cfg.NATSURL != "" {
		bridge, err = feed.NewBridge(cfg.NATSURL, cfg.FeedSubjectRoot, h.Broadcaster, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect feed bridge")
		}
		if err := bridge.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start feed bridge")
		}
	}

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down")
	if bridge != nil {
		bridge.Stop()
	}
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}
