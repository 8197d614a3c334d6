package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
)

// HealthHandler provides enhanced health check endpoints.
type HealthHandler struct {
	queue services.TaskQueue
}

func NewHealthHandler(queue services.TaskQueue) *HealthHandler {
	return &HealthHandler{queue: queue}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Queue mode and backlog
	queueMode := "memory"
	queueDepth := 0
	if h.queue != nil {
		if h.queue.IsAsync() {
			queueMode = "async (Redis)"
		}
		queueDepth = h.queue.Depth()
	}

	// Reports waiting on a sync
	var pendingCount int64
	models.GetDB().Model(&models.Report{}).
		Where("sync_status = ?", models.SyncStatusPending).
		Count(&pendingCount)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "bugpin",
		"components": gin.H{
			"database":      dbStatus,
			"queue_mode":    queueMode,
			"queue_depth":   queueDepth,
			"pending_syncs": pendingCount,
		},
	})
}
