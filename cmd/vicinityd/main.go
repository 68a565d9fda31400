package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vicinity-chat/vicinity-go/internal/api"
	"github.com/vicinity-chat/vicinity-go/internal/config"
	"github.com/vicinity-chat/vicinity-go/internal/connection"
	"github.com/vicinity-chat/vicinity-go/internal/events"
	"github.com/vicinity-chat/vicinity-go/internal/journal"
	"github.com/vicinity-chat/vicinity-go/internal/logging"
	"github.com/vicinity-chat/vicinity-go/internal/models"
	"github.com/vicinity-chat/vicinity-go/internal/observability"
	"github.com/vicinity-chat/vicinity-go/internal/store"
	"github.com/vicinity-chat/vicinity-go/internal/tokenstore"
	tsmem "github.com/vicinity-chat/vicinity-go/internal/tokenstore/mem"
	tsredis "github.com/vicinity-chat/vicinity-go/internal/tokenstore/redis"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	otelCleanup, err := observability.InitOpenTelemetry("vicinityd", version)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	// Token store: Redis when configured so sessions survive restarts,
	// in-memory otherwise.
	var tokens tokenstore.Store
	var redisTokens *tsredis.Redis
	if cfg.RedisURL != "" {
		redisTokens, err = tsredis.New(cfg.RedisURL, cfg.TokenTTL)
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize Redis token store: %v", err)
		}
		tokens = redisTokens
	} else {
		tokens = tsmem.New()
	}

	metrics := observability.NewMetrics()
	bus := events.NewBus(logger)

	client := api.NewClient(cfg.APIBaseURL, tokens)
	roomSvc := api.NewRoomService(client)

	manager := connection.NewManager(connection.Options{
		URL:                  cfg.WSURL,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnects,
		ClientInfo: models.ClientInfo{
			InstanceID: uuid.NewString(),
			Platform:   runtime.GOOS,
			Version:    version,
		},
	}, tokens, bus, logger, metrics)

	syncStore := store.New(store.Config{
		Service:       roomSvc,
		Subscriber:    manager,
		Bus:           bus,
		Logger:        logger,
		Metrics:       metrics,
		SessionUserID: cfg.SessionUserID,
	})
	syncStore.Start()

	var eventJournal *journal.Journal
	if cfg.DatabaseURL != "" {
		eventJournal, err = journal.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize event journal: %v", err)
		}
		eventJournal.Start(bus)
		logger.Info(ctx, "Event journal enabled")
	}

	metricsServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metrics.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info(ctx, "Serving metrics on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Metrics server error: %v", err)
		}
	}()

	if err := manager.Connect(ctx); err != nil {
		// Not fatal: the manager keeps reconnecting on transport failures,
		// and a missing token is surfaced for the operator to fix.
		logger.Error(ctx, "Initial connect failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	gracefulShutdown(ctx, logger, metricsServer, manager, syncStore, eventJournal, redisTokens, otelCleanup)
	logger.Info(ctx, "Application stopped.")
}

// gracefulShutdown stops components in dependency order.
func gracefulShutdown(
	ctx context.Context,
	logger *logging.Logger,
	metricsServer *http.Server,
	manager *connection.Manager,
	syncStore *store.Store,
	eventJournal *journal.Journal,
	redisTokens *tsredis.Redis,
	otelCleanup func(context.Context) error,
) {
	logger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	manager.Disconnect()
	logger.Info(ctx, "Connection manager stopped.")

	syncStore.Stop()
	logger.Info(ctx, "Sync store stopped.")

	if eventJournal != nil {
		eventJournal.Stop()
		logger.Info(ctx, "Event journal stopped.")
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Metrics server shutdown error: %v", err)
	}

	if redisTokens != nil {
		if err := redisTokens.Close(); err != nil {
			logger.Error(ctx, "Redis token store close error: %v", err)
		}
	}

	if otelCleanup != nil {
		if err := otelCleanup(shutdownCtx); err != nil {
			logger.Error(ctx, "OpenTelemetry shutdown error: %v", err)
		}
	}

	logger.Info(ctx, "Graceful shutdown complete.")
}
