package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aranticlabs/bugpin/backend/internal/config"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

// SyncWorker consumes queued sync tasks from Redis.
type SyncWorker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	process ProcessFunc
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewSyncWorker(redisCfg *config.RedisConfig, syncCfg *config.SyncConfig, process ProcessFunc) *SyncWorker {
	concurrency := syncCfg.MaxConcurrent
	if concurrency <= 0 {
		concurrency = 3
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				syncQueueName: 1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return backoffFor(n + 1)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warnf("[SyncWorker] task %s failed: %v", task.Type(), err)
			}),
		},
	)

	return &SyncWorker{
		server:  server,
		mux:     asynq.NewServeMux(),
		process: process,
	}
}

// Start begins consuming tasks.
func (w *SyncWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeSyncReport, w.handleSyncTask)
	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[SyncWorker] starting")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[SyncWorker] server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the worker down, waiting for in-flight tasks.
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[SyncWorker] shutting down")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[SyncWorker] shutdown complete")
}

// handleSyncTask runs one queued attempt. Non-retryable outcomes are
// wrapped in SkipRetry so asynq does not reschedule them.
func (w *SyncWorker) handleSyncTask(ctx context.Context, t *asynq.Task) error {
	var payload SyncTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal sync task: %v: %w", err, asynq.SkipRetry)
	}

	result := w.process(ctx, payload.ReportID, payload.IntegrationID)
	if result == nil {
		return fmt.Errorf("sync produced no result: %w", asynq.SkipRetry)
	}
	if result.Success {
		return nil
	}
	if !retryableCode(result.Code) {
		logger.Warnf("[SyncWorker] report %d dropped (%s): %s", payload.ReportID, result.Code, result.Message)
		return fmt.Errorf("%s: %s: %w", result.Code, result.Message, asynq.SkipRetry)
	}
	return fmt.Errorf("sync report %d: %s", payload.ReportID, result.Message)
}
