package services

import (
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

type ReportListParams struct {
	Page       int
	PageSize   int
	ProjectID  uint
	Status     string
	SyncStatus string
	Priority   string
	Keyword    string
}

func (s *ReportService) List(params *ReportListParams) ([]models.Report, int64, error) {
	var reports []models.Report
	var total int64

	query := s.db.Model(&models.Report{})

	if params.ProjectID != 0 {
		query = query.Where("project_id = ?", params.ProjectID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.SyncStatus != "" {
		query = query.Where("sync_status = ?", params.SyncStatus)
	}
	if params.Priority != "" {
		query = query.Where("priority = ?", params.Priority)
	}
	if params.Keyword != "" {
		query = query.Where("title LIKE ?", "%"+params.Keyword+"%")
	}

	query.Count(&total)

	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.Page <= 0 {
		params.Page = 1
	}

	offset := (params.Page - 1) * params.PageSize
	err := query.Order("id DESC").Offset(offset).Limit(params.PageSize).Find(&reports).Error
	return reports, total, err
}

func (s *ReportService) ByID(id uint) (*models.Report, error) {
	var report models.Report
	err := s.db.First(&report, id).Error
	return &report, err
}

// ByIDWithAttachments loads a report with its files for the detail view.
func (s *ReportService) ByIDWithAttachments(id uint) (*models.Report, error) {
	var report models.Report
	err := s.db.Preload("Attachments").First(&report, id).Error
	return &report, err
}

// ByIssueNumber resolves the report a remote issue maps to.
func (s *ReportService) ByIssueNumber(projectID uint, issueNumber int) (*models.Report, error) {
	var report models.Report
	err := s.db.Where("project_id = ? AND issue_number = ?", projectID, issueNumber).First(&report).Error
	return &report, err
}

func (s *ReportService) Create(report *models.Report) error {
	return s.db.Create(report).Error
}

func (s *ReportService) Update(id uint, fields map[string]interface{}) error {
	return s.db.Model(&models.Report{}).Where("id = ?", id).Updates(fields).Error
}

// MarkPending flags reports as queued for sync and clears stale errors.
func (s *ReportService) MarkPending(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Model(&models.Report{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"sync_status": models.SyncStatusPending,
		"sync_error":  "",
	}).Error
}

// UnsyncedByProject lists reports never linked to a remote issue.
func (s *ReportService) UnsyncedByProject(projectID uint) ([]models.Report, error) {
	var reports []models.Report
	err := s.db.Where("project_id = ? AND issue_number IS NULL", projectID).
		Order("id ASC").Find(&reports).Error
	return reports, err
}

func (s *ReportService) Delete(id uint) error {
	return s.db.Delete(&models.Report{}, id).Error
}
