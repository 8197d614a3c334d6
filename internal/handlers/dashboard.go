package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/services"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: services.NewDashboardService(db),
	}
}

// GetStats returns dashboard statistics
// GET /api/dashboard/stats?start_date=2025-01-01&end_date=2025-01-31
func (h *DashboardHandler) GetStats(c *gin.Context) {
	var req services.DashboardStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validateDateRange(req.StartDate, req.EndDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.dashboardService.GetStats(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// validateDateRange rejects malformed dates at the API boundary so callers
// see a 400 instead of silently getting the default window.
func validateDateRange(startDate, endDate string) error {
	var start, end time.Time
	var err error

	if startDate != "" {
		if start, err = time.Parse("2006-01-02", startDate); err != nil {
			return &DateRangeError{Field: "start_date", Value: startDate}
		}
	}
	if endDate != "" {
		if end, err = time.Parse("2006-01-02", endDate); err != nil {
			return &DateRangeError{Field: "end_date", Value: endDate}
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return &DateRangeError{Field: "end_date", Value: endDate, BeforeStart: true}
	}
	return nil
}

type DateRangeError struct {
	Field       string
	Value       string
	BeforeStart bool
}

func (e *DateRangeError) Error() string {
	if e.BeforeStart {
		return "end_date must not be before start_date"
	}
	return e.Field + " must use YYYY-MM-DD format, got: " + e.Value
}
