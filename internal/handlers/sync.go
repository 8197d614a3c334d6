package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
	"github.com/aranticlabs/bugpin/backend/pkg/response"
)

type SyncHandler struct {
	syncService   *services.SyncService
	reportService *services.ReportService
	queue         services.TaskQueue
}

func NewSyncHandler(db *gorm.DB, syncService *services.SyncService, queue services.TaskQueue) *SyncHandler {
	return &SyncHandler{
		syncService:   syncService,
		reportService: services.NewReportService(db),
		queue:         queue,
	}
}

func syncErrorResponse(c *gin.Context, err error) {
	switch services.SyncErrorCode(err) {
	case services.SyncErrNotFound:
		response.NotFound(c, err.Error())
	case services.SyncErrInvalidType, services.SyncErrConfig:
		response.BadRequest(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

type SetSyncModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=manual automatic"`
}

// SetSyncMode switches an integration between manual and automatic
// sync, registering or tearing down the inbound webhook as needed
// PUT /api/integrations/:id/sync-mode
func (h *SyncHandler) SetSyncMode(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid integration id")
		return
	}

	var req SetSyncModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var integ *models.Integration
	if req.Mode == models.SyncModeAutomatic {
		integ, err = h.syncService.EnableAutoSync(c.Request.Context(), uint(id))
	} else {
		integ, err = h.syncService.DisableAutoSync(c.Request.Context(), uint(id))
	}
	if err != nil {
		syncErrorResponse(c, err)
		return
	}

	response.Success(c, integ)
}

type EnqueueSyncRequest struct {
	ReportIDs []uint `json:"report_ids"`
	All       bool   `json:"all"`
}

// EnqueueSync queues reports of a project for background sync, either
// an explicit id list or every report not yet linked to an issue
// POST /api/projects/:id/sync
func (h *SyncHandler) EnqueueSync(c *gin.Context) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}

	var req EnqueueSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	integ, err := h.syncService.ActiveIntegration(uint(projectID))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if integ == nil {
		response.BadRequest(c, "project has no active tracker integration")
		return
	}

	ids := req.ReportIDs
	if req.All {
		ids, err = h.syncService.UnsyncedReportIDs(uint(projectID))
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}
	if len(ids) == 0 {
		response.Success(c, gin.H{"enqueued": 0, "skipped": 0})
		return
	}

	if err := h.reportService.MarkPending(ids); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	enqueued, skipped := 0, 0
	for _, reportID := range ids {
		added, err := h.queue.Enqueue(reportID, integ.ID)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		if added {
			enqueued++
		} else {
			skipped++
		}
	}

	services.LogInfo("sync", "enqueue", "reports queued for sync", nil, c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
		"project_id":     projectID,
		"integration_id": integ.ID,
		"enqueued":       enqueued,
		"skipped":        skipped,
	})
	response.Success(c, gin.H{"enqueued": enqueued, "skipped": skipped})
}

// SyncStatus summarizes a project's sync state for the admin UI
// GET /api/projects/:id/sync-status
func (h *SyncHandler) SyncStatus(c *gin.Context) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}

	mode := models.SyncModeManual
	integ, err := h.syncService.ActiveIntegration(uint(projectID))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if integ != nil {
		mode = integ.SyncMode
	}

	unsynced, err := h.syncService.UnsyncedCount(uint(projectID))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"mode":           mode,
		"has_integration": integ != nil,
		"unsynced_count": unsynced,
		"queue_depth":    h.queue.Depth(),
		"processing":     h.queue.Processing(),
		"async":          h.queue.IsAsync(),
	})
}

// SyncReport pushes one report to the tracker right away, retrying
// transient failures before answering
// POST /api/reports/:id/sync
func (h *SyncHandler) SyncReport(c *gin.Context) {
	reportID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}

	report, err := h.reportService.ByID(uint(reportID))
	if err != nil {
		response.NotFound(c, "report not found")
		return
	}

	integ, err := h.syncService.ActiveIntegration(report.ProjectID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if integ == nil {
		response.BadRequest(c, "project has no active tracker integration")
		return
	}

	result := h.syncService.SyncWithRetry(c.Request.Context(), uint(reportID), integ.ID)
	response.Success(c, result)
}

// RetrySync queues one failed report for another background attempt
// POST /api/reports/:id/retry-sync
func (h *SyncHandler) RetrySync(c *gin.Context) {
	reportID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}

	report, err := h.reportService.ByID(uint(reportID))
	if err != nil {
		response.NotFound(c, "report not found")
		return
	}

	integ, err := h.syncService.ActiveIntegration(report.ProjectID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if integ == nil {
		response.BadRequest(c, "project has no active tracker integration")
		return
	}

	if err := h.reportService.MarkPending([]uint{uint(reportID)}); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	added, err := h.queue.Enqueue(uint(reportID), integ.ID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"enqueued": added})
}
