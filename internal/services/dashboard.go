package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardStatsRequest struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type DashboardStats struct {
	ActiveProjects     int64 `json:"active_projects"`
	ActiveIntegrations int64 `json:"active_integrations"`
	TotalReports       int64 `json:"total_reports"`
	OpenReports        int64 `json:"open_reports"`
	ResolvedReports    int64 `json:"resolved_reports"`
	SyncedReports      int64 `json:"synced_reports"`
	PendingSyncs       int64 `json:"pending_syncs"`
	SyncErrors         int64 `json:"sync_errors"`
}

type ProjectStats struct {
	ProjectID   uint   `json:"project_id"`
	ProjectName string `json:"project_name"`
	ReportCount int64  `json:"report_count"`
	OpenCount   int64  `json:"open_count"`
	SyncedCount int64  `json:"synced_count"`
}

type StatusStats struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type DashboardResponse struct {
	Stats         DashboardStats  `json:"stats"`
	ProjectStats  []ProjectStats  `json:"project_stats"`
	StatusStats   []StatusStats   `json:"status_stats"`
	RecentReports []models.Report `json:"recent_reports"`
}

func (s *DashboardService) GetStats(req *DashboardStatsRequest) (*DashboardResponse, error) {
	var startDate, endDate time.Time
	var err error

	if req.StartDate != "" {
		startDate, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			startDate = time.Now().AddDate(0, 0, -7)
		}
	} else {
		startDate = time.Now().AddDate(0, 0, -7)
	}

	if req.EndDate != "" {
		endDate, err = time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			endDate = time.Now()
		}
		endDate = endDate.Add(24*time.Hour - time.Second)
	} else {
		endDate = time.Now()
	}

	var stats DashboardStats

	s.db.Model(&models.Project{}).
		Where("is_active = ?", true).
		Count(&stats.ActiveProjects)

	s.db.Model(&models.Integration{}).
		Where("is_active = ?", true).
		Count(&stats.ActiveIntegrations)

	s.db.Model(&models.Report{}).
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Count(&stats.TotalReports)

	s.db.Model(&models.Report{}).
		Where("created_at BETWEEN ? AND ? AND status = ?", startDate, endDate, models.ReportStatusOpen).
		Count(&stats.OpenReports)

	s.db.Model(&models.Report{}).
		Where("created_at BETWEEN ? AND ? AND status = ?", startDate, endDate, models.ReportStatusResolved).
		Count(&stats.ResolvedReports)

	s.db.Model(&models.Report{}).
		Where("created_at BETWEEN ? AND ? AND sync_status = ?", startDate, endDate, models.SyncStatusSynced).
		Count(&stats.SyncedReports)

	s.db.Model(&models.Report{}).
		Where("created_at BETWEEN ? AND ? AND sync_status = ?", startDate, endDate, models.SyncStatusPending).
		Count(&stats.PendingSyncs)

	s.db.Model(&models.Report{}).
		Where("created_at BETWEEN ? AND ? AND sync_status = ?", startDate, endDate, models.SyncStatusError).
		Count(&stats.SyncErrors)

	var projectStats []ProjectStats
	s.db.Model(&models.Report{}).
		Select("project_id, COUNT(*) as report_count, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) as open_count, "+
			"COALESCE(SUM(CASE WHEN sync_status = ? THEN 1 ELSE 0 END), 0) as synced_count",
			models.ReportStatusOpen, models.SyncStatusSynced).
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("project_id").
		Order("report_count DESC").
		Limit(10).
		Scan(&projectStats)

	for i := range projectStats {
		var project models.Project
		if err := s.db.First(&project, projectStats[i].ProjectID).Error; err == nil {
			projectStats[i].ProjectName = project.Name
		}
	}

	var statusStats []StatusStats
	s.db.Model(&models.Report{}).
		Select("status, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("status").
		Order("count DESC").
		Scan(&statusStats)

	var recentReports []models.Report
	s.db.Model(&models.Report{}).
		Order("created_at DESC").
		Limit(10).
		Find(&recentReports)

	return &DashboardResponse{
		Stats:         stats,
		ProjectStats:  projectStats,
		StatusStats:   statusStats,
		RecentReports: recentReports,
	}, nil
}
