package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
	"github.com/aranticlabs/bugpin/backend/pkg/response"
)

// ProjectTokenHeader carries the widget token on public intake calls.
const ProjectTokenHeader = "X-Project-Token"

const maxIntakeAttachments = 10

type ReportHandler struct {
	reportService  *services.ReportService
	projectService *services.ProjectService
	attachments    *services.AttachmentService
	syncService    *services.SyncService
	queue          services.TaskQueue
}

func NewReportHandler(db *gorm.DB, attachments *services.AttachmentService, syncService *services.SyncService, queue services.TaskQueue) *ReportHandler {
	return &ReportHandler{
		reportService:  services.NewReportService(db),
		projectService: services.NewProjectService(db),
		attachments:    attachments,
		syncService:    syncService,
		queue:          queue,
	}
}

// List returns paginated reports with filters
// GET /api/reports
func (h *ReportHandler) List(c *gin.Context) {
	params := &services.ReportListParams{
		Status:     c.Query("status"),
		SyncStatus: c.Query("sync_status"),
		Priority:   c.Query("priority"),
		Keyword:    c.Query("keyword"),
	}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pid, err := strconv.ParseUint(c.Query("project_id"), 10, 32); err == nil {
		params.ProjectID = uint(pid)
	}

	items, total, err := h.reportService.List(params)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Paged(c, total, params.Page, params.PageSize, items)
}

// GetByID returns one report with its attachments
// GET /api/reports/:id
func (h *ReportHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}

	report, err := h.reportService.ByIDWithAttachments(uint(id))
	if err != nil {
		response.NotFound(c, "report not found")
		return
	}

	response.Success(c, report)
}

type UpdateReportRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status" binding:"omitempty,oneof=open in_progress resolved closed"`
	Priority    string `json:"priority" binding:"omitempty,oneof=low medium high critical"`
}

// Update edits a report; a status change on a synced report under an
// automatic integration is pushed back to the tracker
// PUT /api/reports/:id
func (h *ReportHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}

	report, err := h.reportService.ByID(uint(id))
	if err != nil {
		response.NotFound(c, "report not found")
		return
	}

	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	fields := make(map[string]interface{})
	if req.Title != "" {
		fields["title"] = req.Title
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if req.Status != "" {
		fields["status"] = req.Status
	}
	if req.Priority != "" {
		fields["priority"] = req.Priority
	}

	if len(fields) > 0 {
		if err := h.reportService.Update(uint(id), fields); err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}

	statusChanged := req.Status != "" && req.Status != report.Status
	if statusChanged && report.Synced() {
		h.enqueueAutoSync(uint(id), report.ProjectID)
	}

	updated, err := h.reportService.ByID(uint(id))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, updated)
}

// Delete removes a report and its stored attachments
// DELETE /api/reports/:id
func (h *ReportHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid report id")
		return
	}

	if err := h.attachments.DeleteByReport(uint(id)); err != nil {
		logger.Warnf("[Report] failed to delete attachments for report %d: %v", id, err)
	}
	if err := h.reportService.Delete(uint(id)); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "report deleted"})
}

type WidgetReportRequest struct {
	Title         string `json:"title" form:"title" binding:"required"`
	Description   string `json:"description" form:"description"`
	Priority      string `json:"priority" form:"priority" binding:"omitempty,oneof=low medium high critical"`
	ReporterName  string `json:"reporter_name" form:"reporter_name"`
	ReporterEmail string `json:"reporter_email" form:"reporter_email"`
	PageURL       string `json:"page_url" form:"page_url"`
	Browser       string `json:"browser" form:"browser"`
	OS            string `json:"os" form:"os"`
	ScreenSize    string `json:"screen_size" form:"screen_size"`
	DeviceType    string `json:"device_type" form:"device_type"`
	ConsoleLogs   string `json:"console_logs" form:"console_logs"`
	NetworkLogs   string `json:"network_logs" form:"network_logs"`
	ActivityTrail string `json:"activity_trail" form:"activity_trail"`
}

// CreateFromWidget ingests one report from the capture widget. The
// project is resolved from the widget token; multipart bodies may carry
// attachments. With an automatic integration the report is queued for
// sync right away.
// POST /api/widget/reports
func (h *ReportHandler) CreateFromWidget(c *gin.Context) {
	token := c.GetHeader(ProjectTokenHeader)
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		response.Unauthorized(c, "missing project token")
		return
	}

	project, err := h.projectService.GetByToken(token)
	if err != nil {
		response.Unauthorized(c, "invalid project token")
		return
	}

	var req WidgetReportRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		err = c.ShouldBind(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if req.Priority == "" {
		req.Priority = models.ReportPriorityMedium
	}

	report := &models.Report{
		ProjectID:     project.ID,
		Title:         req.Title,
		Description:   req.Description,
		Status:        models.ReportStatusOpen,
		Priority:      req.Priority,
		ReporterName:  req.ReporterName,
		ReporterEmail: req.ReporterEmail,
		PageURL:       req.PageURL,
		Browser:       req.Browser,
		OS:            req.OS,
		ScreenSize:    req.ScreenSize,
		DeviceType:    req.DeviceType,
		ConsoleLogs:   req.ConsoleLogs,
		NetworkLogs:   req.NetworkLogs,
		ActivityTrail: req.ActivityTrail,
		SyncStatus:    models.SyncStatusNone,
	}
	if err := h.reportService.Create(report); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	saved := 0
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files := form.File["attachments"]
		if len(files) > maxIntakeAttachments {
			files = files[:maxIntakeAttachments]
		}
		for _, fh := range files {
			src, err := fh.Open()
			if err != nil {
				logger.Warnf("[Report] failed to open uploaded file %s: %v", fh.Filename, err)
				continue
			}
			_, err = h.attachments.Save(report.ID, fh.Filename, fh.Header.Get("Content-Type"), src)
			src.Close()
			if err != nil {
				logger.Warnf("[Report] failed to store attachment %s for report %d: %v", fh.Filename, report.ID, err)
				continue
			}
			saved++
		}
	}

	queued := h.enqueueAutoSync(report.ID, project.ID)

	services.LogInfo("report", "widget_intake", "report received from widget", nil, c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
		"project_id":  project.ID,
		"report_id":   report.ID,
		"attachments": saved,
		"queued":      queued,
	})

	response.Created(c, gin.H{
		"id":          report.ID,
		"status":      report.Status,
		"attachments": saved,
		"queued":      queued,
	})
}

// enqueueAutoSync queues the report when its project has an active
// automatic integration. Returns whether a task was queued.
func (h *ReportHandler) enqueueAutoSync(reportID, projectID uint) bool {
	integ, err := h.syncService.AutoSyncIntegration(projectID)
	if err != nil || integ == nil {
		return false
	}
	if err := h.reportService.MarkPending([]uint{reportID}); err != nil {
		logger.Warnf("[Report] failed to mark report %d pending: %v", reportID, err)
	}
	added, err := h.queue.Enqueue(reportID, integ.ID)
	if err != nil {
		logger.Warnf("[Report] failed to enqueue report %d: %v", reportID, err)
		return false
	}
	return added
}
