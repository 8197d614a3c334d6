package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/pkg/logger"
)

// AttachmentService stores report files on local disk under the
// configured storage directory and records them in the database.
type AttachmentService struct {
	db       *gorm.DB
	dir      string
	settings Settings
}

func NewAttachmentService(db *gorm.DB, dir string, settings Settings) *AttachmentService {
	return &AttachmentService{db: db, dir: dir, settings: settings}
}

// Save writes one uploaded file and records it. Stored names get a
// random prefix so two uploads of "screenshot.png" cannot collide.
func (s *AttachmentService) Save(reportID uint, fileName, mimeType string, src io.Reader) (*models.Attachment, error) {
	base := filepath.Base(fileName)
	if base == "" || base == "." || base == string(os.PathSeparator) {
		base = "attachment"
	}

	stored := fmt.Sprintf("%s_%s", uuid.NewString()[:8], base)
	relPath := filepath.Join("reports", fmt.Sprintf("%d", reportID), stored)
	fullPath := filepath.Join(s.dir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	att := &models.Attachment{
		ReportID: reportID,
		FileName: base,
		FilePath: filepath.ToSlash(relPath),
		FileSize: size,
		MimeType: mimeType,
		URL:      "/uploads/" + filepath.ToSlash(relPath),
	}
	if err := s.db.Create(att).Error; err != nil {
		os.Remove(fullPath)
		return nil, err
	}
	return att, nil
}

// ByReport lists a report's files. URLs come back absolute when a
// public base URL is configured, so links embedded in remote issue
// bodies resolve from outside.
func (s *AttachmentService) ByReport(reportID uint) ([]models.Attachment, error) {
	var atts []models.Attachment
	if err := s.db.Where("report_id = ?", reportID).Order("id ASC").Find(&atts).Error; err != nil {
		return nil, err
	}

	base := ""
	if s.settings != nil {
		base = strings.TrimRight(s.settings.PublicBaseURL(), "/")
	}
	if base != "" {
		for i := range atts {
			if strings.HasPrefix(atts[i].URL, "/") {
				atts[i].URL = base + atts[i].URL
			}
		}
	}
	return atts, nil
}

// Read returns a stored file's bytes.
func (s *AttachmentService) Read(att *models.Attachment) ([]byte, error) {
	full := filepath.Clean(filepath.Join(s.dir, filepath.FromSlash(att.FilePath)))
	if !strings.HasPrefix(full, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("attachment path escapes storage dir: %s", att.FilePath)
	}
	return os.ReadFile(full)
}

// DeleteByReport removes a report's attachment rows and files.
func (s *AttachmentService) DeleteByReport(reportID uint) error {
	var atts []models.Attachment
	if err := s.db.Where("report_id = ?", reportID).Find(&atts).Error; err != nil {
		return err
	}

	for i := range atts {
		full := filepath.Join(s.dir, filepath.FromSlash(atts[i].FilePath))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[Attachment] failed to remove %s: %v", atts[i].FilePath, err)
		}
	}
	return s.db.Where("report_id = ?", reportID).Delete(&models.Attachment{}).Error
}
