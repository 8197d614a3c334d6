package models

import (
	"time"

	"gorm.io/gorm"
)

// Integration types. Only the GitHub-style tracker is implemented; the
// discriminant column exists so other trackers can be added without a
// schema change.
const (
	IntegrationTypeGitHub = "github"
)

// Sync modes.
const (
	SyncModeManual    = "manual"
	SyncModeAutomatic = "automatic"
)

// Integration connects one project to one repository on an external
// issue tracker.
type Integration struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	ProjectID uint     `gorm:"index;not null" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Name      string   `gorm:"size:200;not null" json:"name"`
	Type      string   `gorm:"size:50;not null;default:github" json:"type"`
	BaseURL   string   `gorm:"size:500" json:"base_url"` // empty = public tracker API
	Owner     string   `gorm:"size:200;not null" json:"owner"`
	Repo      string   `gorm:"size:200;not null" json:"repo"`

	AccessToken string `gorm:"size:500" json:"-"`
	Labels      string `gorm:"size:500" json:"labels"`    // comma-separated default labels
	Assignees   string `gorm:"size:500" json:"assignees"` // comma-separated default assignees

	// UploadAttachments controls whether report files are pushed into the
	// tracker repository or linked at their locally hosted URL.
	UploadAttachments bool `gorm:"default:true" json:"upload_attachments"`

	SyncMode      string `gorm:"size:20;default:manual" json:"sync_mode"` // manual, automatic
	WebhookID     *int64 `json:"webhook_id"`
	WebhookSecret string `gorm:"size:255" json:"-"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`

	SyncCount  int64      `gorm:"default:0" json:"sync_count"`
	LastSyncAt *time.Time `json:"last_sync_at"`

	CreatedBy uint           `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Integration) TableName() string { return "integrations" }

// RepoSlug returns the "owner/repo" locator.
func (i *Integration) RepoSlug() string {
	return i.Owner + "/" + i.Repo
}

// MaskAccessToken returns masked access token for display
func (i *Integration) MaskAccessToken() string {
	if len(i.AccessToken) <= 8 {
		return "****"
	}
	return i.AccessToken[:4] + "****" + i.AccessToken[len(i.AccessToken)-4:]
}
