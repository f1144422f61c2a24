// Worker deletes expired legacy tokens every LEGACY_CLEANUP_INTERVAL and, when
// KAFKA_BROKERS is set, consumes request telemetry from TELEMETRY_KAFKA_TOPIC
// and writes it to the structured log. GRPC_ADDR is required by config but unused.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"devicebound-auth/backend/internal/config"
	"devicebound-auth/backend/internal/db"
	legacyservice "devicebound-auth/backend/internal/legacytoken/service"
	"devicebound-auth/backend/internal/logger"
	"devicebound-auth/backend/internal/store"
	"devicebound-auth/backend/internal/telemetry/domain"
	"devicebound-auth/backend/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if cfg.DatabaseURL == "" {
		zl.Fatal("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("worker: database", zap.Error(err))
	}
	defer pool.Close()

	// Cleanup needs neither credential checks nor token signing.
	legacy := legacyservice.NewService(store.NewPostgres(pool), nil, nil, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("worker: legacy token cleanup", zap.Duration("every", cfg.LegacyCleanupEvery()))
		legacy.RunCleanup(gctx, cfg.LegacyCleanupEvery(), zl)
		return nil
	})

	if consumer := producer.NewKafkaConsumer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, zl); consumer != nil {
		defer consumer.Close()
		g.Go(func() error {
			zl.Info("worker: consuming telemetry",
				zap.String("topic", cfg.TelemetryKafkaTopic),
				zap.String("group", cfg.KafkaGroupID),
			)
			return consumer.Run(gctx, func(_ context.Context, e *domain.Event) error {
				zl.Info("telemetry",
					zap.String("event_type", e.EventType),
					zap.String("source", e.Source),
					zap.String("user_id", e.UserID),
					zap.String("device_id", e.DeviceID),
					zap.String("session_id", e.SessionID),
					zap.ByteString("metadata", e.Metadata),
					zap.Time("created_at", e.CreatedAt),
				)
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("worker", zap.Error(err))
	}
	zl.Info("worker: stopped")
}
