package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aranticlabs/bugpin/backend/internal/config"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

// SyncTask is one queued unit of "push this report to the tracker" work.
type SyncTask struct {
	ID            string
	ReportID      uint
	IntegrationID uint
	CreatedAt     time.Time
	Attempts      int
	NextAttempt   time.Time
}

// queueBackoff is the delay schedule between queue attempts, indexed by
// how many attempts have already failed.
var queueBackoff = []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}

// backoffFor returns the delay before the next attempt, clamping past
// the end of the schedule.
func backoffFor(failedAttempts int) time.Duration {
	idx := failedAttempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(queueBackoff) {
		idx = len(queueBackoff) - 1
	}
	return queueBackoff[idx]
}

// MemoryQueue holds sync tasks in an ordered in-process collection and
// drains due tasks on a fixed ticker. Tasks do not survive a restart;
// pending rows in the report store are the durable record and the
// reconciler re-enqueues them.
type MemoryQueue struct {
	mu         sync.Mutex
	tasks      []*SyncTask
	processing bool
	running    bool

	interval    time.Duration
	maxAttempts int
	maxParallel int
	process     ProcessFunc

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewMemoryQueue builds a queue from the sync config. Zero config values
// fall back to 5s ticks, 3 attempts, 3 parallel tasks.
func NewMemoryQueue(cfg *config.SyncConfig, process ProcessFunc) *MemoryQueue {
	q := &MemoryQueue{
		interval:    time.Duration(cfg.QueueIntervalSeconds) * time.Second,
		maxAttempts: cfg.MaxAttempts,
		maxParallel: cfg.MaxConcurrent,
		process:     process,
	}
	if q.interval <= 0 {
		q.interval = 5 * time.Second
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = 3
	}
	if q.maxParallel <= 0 {
		q.maxParallel = 3
	}
	return q
}

// Start launches the drain ticker.
func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return nil
	}
	q.running = true
	q.ticker = time.NewTicker(q.interval)
	q.stop = make(chan struct{})

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.ticker.C:
				q.processDue()
			case <-q.stop:
				return
			}
		}
	}()

	logger.Infof("[SyncQueue] started, interval %v, max attempts %d, max parallel %d", q.interval, q.maxAttempts, q.maxParallel)
	return nil
}

// Close halts the ticker. A drain already underway finishes its batch;
// nothing is cancelled mid-call to the tracker.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	q.ticker.Stop()
	close(q.stop)
	q.wg.Wait()
	logger.Infof("[SyncQueue] stopped")
	return nil
}

// Enqueue schedules a report for sync. A report with a live task is not
// enqueued twice; the existing task stands.
func (q *MemoryQueue) Enqueue(reportID, integrationID uint) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.ReportID == reportID {
			return false, nil
		}
	}

	now := time.Now()
	q.tasks = append(q.tasks, &SyncTask{
		ID:            fmt.Sprintf("%d-%d", reportID, now.UnixNano()),
		ReportID:      reportID,
		IntegrationID: integrationID,
		CreatedAt:     now,
		NextAttempt:   now,
	})
	return true, nil
}

// Depth returns the number of queued tasks.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Processing reports whether a drain batch is in flight.
func (q *MemoryQueue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// IsAsync reports false: tasks run inside the API process.
func (q *MemoryQueue) IsAsync() bool {
	return false
}

// processDue runs one drain batch: tasks whose NextAttempt has elapsed,
// capped to maxParallel, in parallel with isolated failures. A tick
// arriving while a batch is still running is skipped.
func (q *MemoryQueue) processDue() {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}

	now := time.Now()
	due := make([]*SyncTask, 0, q.maxParallel)
	for _, t := range q.tasks {
		if !t.NextAttempt.After(now) {
			due = append(due, t)
			if len(due) >= q.maxParallel {
				break
			}
		}
	}
	if len(due) == 0 {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	var wg sync.WaitGroup
	for _, task := range due {
		wg.Add(1)
		go func(task *SyncTask) {
			defer wg.Done()
			q.runTask(task)
		}(task)
	}
	wg.Wait()

	q.mu.Lock()
	q.processing = false
	q.mu.Unlock()
}

// runTask executes one attempt. A panic in the processor counts as a
// retryable failure so one bad task cannot stall the queue.
func (q *MemoryQueue) runTask(task *SyncTask) {
	var result *SyncResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SyncQueue] panic processing report %d: %v", task.ReportID, r)
				result = &SyncResult{ReportID: task.ReportID, Code: SyncErrFailed, Message: fmt.Sprintf("internal error: %v", r)}
			}
		}()
		result = q.process(context.Background(), task.ReportID, task.IntegrationID)
	}()
	if result == nil {
		result = &SyncResult{ReportID: task.ReportID, Code: SyncErrFailed, Message: "sync produced no result"}
	}

	if result.Success {
		q.remove(task.ID)
		return
	}

	if !retryableCode(result.Code) {
		q.remove(task.ID)
		logger.Warnf("[SyncQueue] report %d dropped (%s): %s", task.ReportID, result.Code, result.Message)
		return
	}

	q.mu.Lock()
	task.Attempts++
	if task.Attempts >= q.maxAttempts {
		q.removeLocked(task.ID)
		q.mu.Unlock()
		logger.Warnf("[SyncQueue] report %d permanently failed after %d attempts: %s", task.ReportID, task.Attempts, result.Message)
		return
	}
	delay := backoffFor(task.Attempts)
	task.NextAttempt = time.Now().Add(delay)
	q.mu.Unlock()

	logger.Infof("[SyncQueue] report %d failed attempt %d/%d, next try in %v", task.ReportID, task.Attempts, q.maxAttempts, delay)
}

func (q *MemoryQueue) remove(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(taskID)
}

func (q *MemoryQueue) removeLocked(taskID string) {
	for i, t := range q.tasks {
		if t.ID == taskID {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return
		}
	}
}
