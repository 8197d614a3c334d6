package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/aranticlabs/bugpin/backend/internal/config"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

const (
	TaskTypeSyncReport = "sync:report"
	syncQueueName      = "sync"
)

// SyncTaskPayload is the serialized form of a queued sync.
type SyncTaskPayload struct {
	ReportID      uint `json:"report_id"`
	IntegrationID uint `json:"integration_id"`
}

// ProcessFunc executes one sync attempt for a queued task.
type ProcessFunc func(ctx context.Context, reportID, integrationID uint) *SyncResult

// TaskQueue schedules deferred report syncs.
type TaskQueue interface {
	Start() error
	// Enqueue schedules a sync, reporting false when the report already
	// has a live task.
	Enqueue(reportID, integrationID uint) (bool, error)
	// Depth is the number of tasks waiting or scheduled.
	Depth() int
	// Processing reports whether tasks are being worked right now.
	Processing() bool
	// IsAsync reports whether tasks go through Redis.
	IsAsync() bool
	// Close stops background processing, letting in-flight work finish.
	Close() error
}

// NewTaskQueue selects the queue implementation from config: asynq on
// Redis when enabled and reachable, otherwise the in-process memory
// queue. Constructed once at startup; callers hold the reference.
func NewTaskQueue(cfg *config.Config, process ProcessFunc) TaskQueue {
	if cfg.Redis.Enabled {
		queue, err := NewAsynqQueue(&cfg.Redis, &cfg.Sync, process)
		if err != nil {
			logger.Warnf("[TaskQueue] Redis unavailable, falling back to in-memory queue: %v", err)
		} else {
			logger.Infof("[TaskQueue] async queue initialized with Redis at %s", cfg.Redis.Addr)
			return queue
		}
	}
	logger.Infof("[TaskQueue] in-memory queue initialized")
	return NewMemoryQueue(&cfg.Sync, process)
}

// AsynqQueue implements TaskQueue on Redis. Task ids derive from the
// report id, so Redis enforces the one-live-task-per-report invariant
// across processes.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	worker    *SyncWorker
	maxRetry  int
}

func NewAsynqQueue(redisCfg *config.RedisConfig, syncCfg *config.SyncConfig, process ProcessFunc) (*AsynqQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	client := asynq.NewClient(redisOpt)
	inspector := asynq.NewInspector(redisOpt)
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		inspector.Close()
		return nil, err
	}

	maxAttempts := syncCfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &AsynqQueue{
		client:    client,
		inspector: inspector,
		worker:    NewSyncWorker(redisCfg, syncCfg, process),
		maxRetry:  maxAttempts - 1,
	}, nil
}

// Start launches the worker consuming the queue.
func (q *AsynqQueue) Start() error {
	return q.worker.Start()
}

// Enqueue adds a sync task, deduplicating on the report id.
func (q *AsynqQueue) Enqueue(reportID, integrationID uint) (bool, error) {
	payload, err := json.Marshal(SyncTaskPayload{ReportID: reportID, IntegrationID: integrationID})
	if err != nil {
		return false, err
	}

	t := asynq.NewTask(TaskTypeSyncReport, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue(syncQueueName),
		asynq.TaskID(fmt.Sprintf("sync-report-%d", reportID)),
		asynq.MaxRetry(q.maxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return false, nil
		}
		return false, err
	}

	logger.Infof("[TaskQueue] task enqueued: id=%s queue=%s", info.ID, info.Queue)
	return true, nil
}

// Depth counts tasks waiting, scheduled or awaiting retry.
func (q *AsynqQueue) Depth() int {
	info, err := q.inspector.GetQueueInfo(syncQueueName)
	if err != nil {
		return 0
	}
	return info.Pending + info.Scheduled + info.Retry
}

// Processing reports whether any task is active on a worker.
func (q *AsynqQueue) Processing() bool {
	info, err := q.inspector.GetQueueInfo(syncQueueName)
	return err == nil && info.Active > 0
}

// IsAsync reports true: tasks go through Redis.
func (q *AsynqQueue) IsAsync() bool {
	return true
}

// Close shuts down the worker and the Redis connections.
func (q *AsynqQueue) Close() error {
	q.worker.Stop()
	q.inspector.Close()
	return q.client.Close()
}
