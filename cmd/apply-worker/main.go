// Package main provides the apply worker entry point.
// Consumes approved medication requests and applies them to the
// patient's medication list exactly once.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/config"
	"github.com/medipal/medtrack/internal/domain/medication"
	"github.com/medipal/medtrack/internal/domain/request"
	"github.com/medipal/medtrack/internal/infrastructure/redpanda"
	"github.com/medipal/medtrack/internal/observability/metrics"
	"github.com/medipal/medtrack/pkg/circuitbreaker"
	"github.com/medipal/medtrack/pkg/idempotency"
	"github.com/medipal/medtrack/pkg/workerpool"
)

const applyHandler = "apply-request"

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

	medRepo := medication.NewRepository(pool, logger)
	reqRepo := request.NewRepository(pool, medRepo, logger)

	inbox := idempotency.NewInbox(pool, idempotency.DefaultInboxConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	cbManager := circuitbreaker.NewManager(logger)
	m := metrics.New()

	// Create worker pool
	poolCfg := workerpool.DefaultConfig()

	workerPool, err := workerpool.New(poolCfg, func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
		return processApplyTask(ctx, task, reqRepo, inbox, cbManager, m, logger)
	}, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}

	workerPool.Start()
	defer workerPool.Stop()

	// Create consumer
	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.Topics = []string{redpanda.TopicMedicationApprovals}

	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		m.KafkaMessagesConsumed.Inc()
		task := &workerpool.Task{
			ID:      string(msg.Key),
			Payload: msg.Value,
			Context: ctx,
		}
		return workerPool.Submit(task)
	}, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()

	// The consumer commits offsets once a task is queued, so a crash or an
	// exhausted retry budget can strand a request at approved with no
	// applied_at. The sweep re-drives those; the inbox keeps the retry from
	// applying twice.
	ctx, cancel := context.WithCancel(context.Background())
	go reconcile(ctx, reqRepo, workerPool, logger)

	logger.Info("apply worker started")

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	consumer.Stop()
	logger.Info("apply worker stopped")
}

func reconcile(ctx context.Context, reqRepo *request.Repository, workerPool *workerpool.Pool, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stranded, err := reqRepo.ApprovedUnapplied(ctx, 2*time.Minute)
			if err != nil {
				logger.Error("reconciliation query failed", zap.Error(err))
				continue
			}
			for _, req := range stranded {
				payload, err := json.Marshal(req)
				if err != nil {
					logger.Error("marshal stranded request failed",
						zap.Int64("request_id", req.ID), zap.Error(err))
					continue
				}
				task := &workerpool.Task{
					ID:      strconv.FormatInt(req.ID, 10),
					Payload: payload,
					Context: ctx,
				}
				if err := workerPool.Submit(task); err != nil {
					logger.Error("resubmit failed",
						zap.Int64("request_id", req.ID), zap.Error(err))
				}
			}
			if len(stranded) > 0 {
				logger.Warn("re-driving unapplied approvals", zap.Int("count", len(stranded)))
			}
		}
	}
}

func processApplyTask(ctx context.Context, task *workerpool.Task, reqRepo *request.Repository, inbox *idempotency.Inbox, cbManager *circuitbreaker.Manager, m *metrics.Metrics, logger *zap.Logger) *workerpool.Result {
	payload, ok := task.Payload.([]byte)
	if !ok {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: errors.New("unexpected payload type")}
	}

	var req request.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}

	cb, err := cbManager.GetOrCreate("medication-apply", circuitbreaker.DefaultConfig("medication-apply"))
	if err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}

	// A replayed approval hits the inbox and is acked without re-applying.
	key := idempotency.GenerateKey(applyHandler, req.ID)

	start := time.Now()
	result, err := inbox.Process(ctx, key, applyHandler, payload, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		result, err := cb.Execute(ctx, func() (interface{}, error) {
			return applyRequest(ctx, reqRepo, &req)
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})

	if err != nil {
		if errors.Is(err, idempotency.ErrDuplicateMessage) {
			logger.Info("request already applied", zap.Int64("request_id", req.ID))
			return &workerpool.Result{TaskID: task.ID, Success: true}
		}
		logger.Error("apply failed",
			zap.Int64("request_id", req.ID),
			zap.Int64("patient_id", req.PatientID),
			zap.Error(err))
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}

	if !result.IsNew && !result.WasRecovered {
		logger.Info("request already applied", zap.Int64("request_id", req.ID))
		return &workerpool.Result{TaskID: task.ID, Success: true}
	}

	m.RequestsApplied.Inc()
	m.ApplyDuration.Observe(time.Since(start).Seconds())

	logger.Info("request applied",
		zap.Int64("request_id", req.ID),
		zap.Int64("patient_id", req.PatientID),
		zap.String("type", string(req.Type)))

	return &workerpool.Result{TaskID: task.ID, Success: true}
}

func applyRequest(ctx context.Context, reqRepo *request.Repository, req *request.Request) (*medication.Medication, error) {
	med, err := reqRepo.Apply(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := reqRepo.MarkApplied(ctx, req.ID, med); err != nil {
		return nil, err
	}
	return med, nil
}
