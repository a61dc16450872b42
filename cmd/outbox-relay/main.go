// Package main provides the outbox relay service entry point.
// Polls the outbox table and publishes committed medication events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/config"
	"github.com/medipal/medtrack/internal/infrastructure/postgres"
	"github.com/medipal/medtrack/internal/infrastructure/redpanda"
	"github.com/medipal/medtrack/internal/observability/metrics"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	logger.Info("connected to database")

	// Ensure topics exist before publishing
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(context.Background()); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	admin.Close()

	// Create Redpanda producer
	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	m := metrics.New()

	// Create outbox processor
	outboxCfg := postgres.DefaultOutboxConfig()
	outbox := postgres.NewOutbox(pool, &producerAdapter{producer, m}, outboxCfg, logger)

	outbox.Start()
	logger.Info("outbox relay started")

	// Housekeeping: expire old processed entries, move exhausted ones to the
	// dead-letter topic, and refresh the pending gauge.
	ctx, cancel := context.WithCancel(context.Background())
	go housekeeping(ctx, outbox, m, logger)

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	outbox.Stop()
	logger.Info("outbox relay stopped")
}

func housekeeping(ctx context.Context, outbox *postgres.Outbox, m *metrics.Metrics, logger *zap.Logger) {
	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()
	dlqTicker := time.NewTicker(time.Minute)
	defer dlqTicker.Stop()
	statsTicker := time.NewTicker(15 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			deleted, err := outbox.CleanupProcessed(ctx, 7*24*time.Hour)
			if err != nil {
				logger.Error("outbox cleanup failed", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("outbox cleanup", zap.Int64("deleted", deleted))
			}
		case <-dlqTicker.C:
			moved, err := outbox.MoveToDeadLetter(ctx, redpanda.TopicDeadLetter)
			if err != nil {
				logger.Error("dead-letter move failed", zap.Error(err))
			} else if moved > 0 {
				logger.Warn("entries moved to dead letter", zap.Int64("count", moved))
			}
		case <-statsTicker.C:
			stats, err := outbox.GetStats(ctx)
			if err != nil {
				continue
			}
			m.OutboxPending.Set(float64(stats.Pending))
		}
	}
}

// producerAdapter adapts the Redpanda producer to OutboxPublisher interface
type producerAdapter struct {
	producer *redpanda.Producer
	metrics  *metrics.Metrics
}

func (a *producerAdapter) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := a.producer.ProduceMessage(ctx, topic, key, value); err != nil {
		return err
	}
	a.metrics.KafkaMessagesProduced.Inc()
	return nil
}
