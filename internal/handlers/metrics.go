package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
)

var startTime = time.Now()

type MetricsHandler struct {
	queue services.TaskQueue
}

func NewMetricsHandler(queue services.TaskQueue) *MetricsHandler {
	return &MetricsHandler{queue: queue}
}

// Metrics returns Prometheus-compatible text format metrics.
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "bugpin_uptime_seconds", "Time since server start in seconds", float64(time.Since(startTime).Seconds()))
	writeGauge(&b, "bugpin_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "bugpin_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "bugpin_memory_sys_bytes", "Total memory obtained from OS in bytes", float64(m.Sys))
	writeGauge(&b, "bugpin_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	// -- Database metrics --
	db := models.GetDB()
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			stats := sqlDB.Stats()
			writeGauge(&b, "bugpin_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
			writeGauge(&b, "bugpin_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
			writeGauge(&b, "bugpin_db_idle_connections", "Number of idle DB connections", float64(stats.Idle))
		}
	}

	// -- Queue metrics --
	queueAsync := 0.0
	queueDepth := 0.0
	queueProcessing := 0.0
	if h.queue != nil {
		if h.queue.IsAsync() {
			queueAsync = 1.0
		}
		queueDepth = float64(h.queue.Depth())
		if h.queue.Processing() {
			queueProcessing = 1.0
		}
	}
	writeGauge(&b, "bugpin_queue_async_enabled", "Whether async queue (Redis) is enabled (1=yes, 0=no)", queueAsync)
	writeGauge(&b, "bugpin_queue_depth", "Number of sync tasks waiting or scheduled", queueDepth)
	writeGauge(&b, "bugpin_queue_processing", "Whether a sync batch is running (1=yes, 0=no)", queueProcessing)

	// -- Report and sync metrics --
	if db != nil {
		var totalReports, openReports, resolvedReports int64
		db.Model(&models.Report{}).Where("deleted_at IS NULL").Count(&totalReports)
		db.Model(&models.Report{}).Where("status = ? AND deleted_at IS NULL", models.ReportStatusOpen).Count(&openReports)
		db.Model(&models.Report{}).Where("status = ? AND deleted_at IS NULL", models.ReportStatusResolved).Count(&resolvedReports)

		writeGauge(&b, "bugpin_reports_total", "Total number of bug reports", float64(totalReports))
		writeGauge(&b, "bugpin_reports_open", "Number of open reports", float64(openReports))
		writeGauge(&b, "bugpin_reports_resolved", "Number of resolved reports", float64(resolvedReports))

		var syncedReports, pendingSyncs, syncErrors int64
		db.Model(&models.Report{}).Where("sync_status = ? AND deleted_at IS NULL", models.SyncStatusSynced).Count(&syncedReports)
		db.Model(&models.Report{}).Where("sync_status = ? AND deleted_at IS NULL", models.SyncStatusPending).Count(&pendingSyncs)
		db.Model(&models.Report{}).Where("sync_status = ? AND deleted_at IS NULL", models.SyncStatusError).Count(&syncErrors)

		writeGauge(&b, "bugpin_reports_synced", "Number of reports linked to a tracker issue", float64(syncedReports))
		writeGauge(&b, "bugpin_reports_sync_pending", "Number of reports waiting on a sync", float64(pendingSyncs))
		writeGauge(&b, "bugpin_reports_sync_errors", "Number of reports whose last sync failed", float64(syncErrors))

		// Projects & Users
		var projectCount, userCount int64
		db.Model(&models.Project{}).Where("deleted_at IS NULL").Count(&projectCount)
		db.Model(&models.User{}).Where("deleted_at IS NULL AND is_active = ?", true).Count(&userCount)

		writeGauge(&b, "bugpin_projects_total", "Total number of active projects", float64(projectCount))
		writeGauge(&b, "bugpin_users_active", "Number of active users", float64(userCount))
	}

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
