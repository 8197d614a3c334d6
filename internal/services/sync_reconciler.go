package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

const (
	// Reports pending longer than this are considered orphaned, e.g.
	// queued in a process that died before draining them.
	reconcileStuckAfter = 10 * time.Minute

	reconcileBatchSize   = 100
	defaultReconcileCron = "*/5 * * * *"

	// Lease must outlive one pass but expire before the next cadence so
	// a crashed holder does not block reconciling forever.
	reconcileLockTTL = 4 * time.Minute
)

// SyncReconciler re-enqueues reports stuck in pending. Queue tasks live
// in process memory; pending rows in the report store are the durable
// record this scheduler drains from.
type SyncReconciler struct {
	db             *gorm.DB
	queue          TaskQueue
	configService  *SystemConfigService
	cronScheduler  *cron.Cron
	currentEntryID cron.EntryID
	stuckAfter     time.Duration
}

func NewSyncReconciler(db *gorm.DB, queue TaskQueue, configService *SystemConfigService) *SyncReconciler {
	return &SyncReconciler{
		db:            db,
		queue:         queue,
		configService: configService,
		stuckAfter:    reconcileStuckAfter,
	}
}

// StartScheduler begins the periodic reconcile pass and runs one
// immediately to pick up reports orphaned by the previous process.
func (s *SyncReconciler) StartScheduler() {
	s.cronScheduler = cron.New()

	cronExpr := defaultReconcileCron
	if s.configService != nil {
		cronExpr = s.configService.GetWithDefault("sync_reconcile_cron", defaultReconcileCron)
	}

	entryID, err := s.cronScheduler.AddFunc(cronExpr, s.Reconcile)
	if err != nil {
		logger.Errorf("[SyncReconciler] invalid cron %q, using default: %v", cronExpr, err)
		entryID, _ = s.cronScheduler.AddFunc(defaultReconcileCron, s.Reconcile)
	}
	s.currentEntryID = entryID

	s.cronScheduler.Start()
	go s.Reconcile()
	logger.Infof("[SyncReconciler] scheduler started (cron: %s, stuck threshold: %v)", cronExpr, s.stuckAfter)
}

// StopScheduler halts the cron loop.
func (s *SyncReconciler) StopScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

// Reconcile finds reports stuck in pending and puts them back on the
// queue through their project's active integration. Reports whose
// project lost its integration become terminal errors instead of
// pending forever. Instances sharing a database coordinate through a
// scheduler lease so only one runs the pass.
func (s *SyncReconciler) Reconcile() {
	owner := lockOwner()
	if !acquireSchedulerLock(s.db, "sync_reconcile", "global", owner, reconcileLockTTL) {
		return
	}
	defer releaseSchedulerLock(s.db, "sync_reconcile", "global", owner)

	cutoff := time.Now().Add(-s.stuckAfter)

	var reports []models.Report
	err := s.db.Where("sync_status = ? AND updated_at < ?", models.SyncStatusPending, cutoff).
		Order("updated_at ASC").
		Limit(reconcileBatchSize).
		Find(&reports).Error
	if err != nil {
		logger.Errorf("[SyncReconciler] query failed: %v", err)
		return
	}
	if len(reports) == 0 {
		return
	}

	requeued := 0
	for i := range reports {
		report := &reports[i]

		var integ models.Integration
		err := s.db.Where("project_id = ? AND type = ? AND is_active = ?",
			report.ProjectID, models.IntegrationTypeGitHub, true).
			First(&integ).Error
		if err != nil {
			s.db.Model(&models.Report{}).Where("id = ?", report.ID).Updates(map[string]interface{}{
				"sync_status": models.SyncStatusError,
				"sync_error":  "no active integration for project",
			})
			continue
		}

		if ok, err := s.queue.Enqueue(report.ID, integ.ID); err != nil {
			logger.Warnf("[SyncReconciler] enqueue failed for report %d: %v", report.ID, err)
		} else if ok {
			requeued++
		}
	}

	if requeued > 0 {
		logger.Infof("[SyncReconciler] requeued %d stuck reports", requeued)
	}
}
