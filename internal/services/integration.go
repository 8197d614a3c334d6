package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
)

// ErrIntegrationExists is returned when a project already has an
// integration of the requested type.
var ErrIntegrationExists = errors.New("integration already exists")

type IntegrationService struct {
	db *gorm.DB
}

func NewIntegrationService(db *gorm.DB) *IntegrationService {
	return &IntegrationService{db: db}
}

type IntegrationListParams struct {
	Page      int
	PageSize  int
	ProjectID uint
	IsActive  *bool
}

func (s *IntegrationService) List(params *IntegrationListParams) ([]models.Integration, int64, error) {
	var integrations []models.Integration
	var total int64

	query := s.db.Model(&models.Integration{})

	if params.ProjectID != 0 {
		query = query.Where("project_id = ?", params.ProjectID)
	}
	if params.IsActive != nil {
		query = query.Where("is_active = ?", *params.IsActive)
	}

	query.Count(&total)

	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.Page <= 0 {
		params.Page = 1
	}

	offset := (params.Page - 1) * params.PageSize
	err := query.Preload("Project").Order("id DESC").Offset(offset).Limit(params.PageSize).Find(&integrations).Error
	return integrations, total, err
}

func (s *IntegrationService) ByID(id uint) (*models.Integration, error) {
	var integ models.Integration
	err := s.db.First(&integ, id).Error
	return &integ, err
}

func (s *IntegrationService) ByProject(projectID uint) ([]models.Integration, error) {
	var integrations []models.Integration
	err := s.db.Where("project_id = ?", projectID).Order("id DESC").Find(&integrations).Error
	return integrations, err
}

// Create stores a new integration. One tracker integration per project;
// a second create for the same project and type is refused.
func (s *IntegrationService) Create(integ *models.Integration) error {
	var count int64
	s.db.Model(&models.Integration{}).
		Where("project_id = ? AND type = ?", integ.ProjectID, integ.Type).
		Count(&count)
	if count > 0 {
		return fmt.Errorf("project %d already has a %s integration: %w", integ.ProjectID, integ.Type, ErrIntegrationExists)
	}
	return s.db.Create(integ).Error
}

func (s *IntegrationService) Update(id uint, fields map[string]interface{}) error {
	return s.db.Model(&models.Integration{}).Where("id = ?", id).Updates(fields).Error
}

// TouchSynced bumps the integration's usage counter and last-used mark
// after a successful sync.
func (s *IntegrationService) TouchSynced(id uint) error {
	return s.db.Model(&models.Integration{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sync_count":   gorm.Expr("sync_count + 1"),
		"last_sync_at": time.Now(),
	}).Error
}

func (s *IntegrationService) Delete(id uint) error {
	return s.db.Delete(&models.Integration{}, id).Error
}
