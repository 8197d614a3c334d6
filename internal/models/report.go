package models

import (
	"time"

	"gorm.io/gorm"
)

// Report statuses.
const (
	ReportStatusOpen       = "open"
	ReportStatusInProgress = "in_progress"
	ReportStatusResolved   = "resolved"
	ReportStatusClosed     = "closed"
)

// Report sync statuses.
const (
	SyncStatusNone    = "none"
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// Report priorities.
const (
	ReportPriorityLow      = "low"
	ReportPriorityMedium   = "medium"
	ReportPriorityHigh     = "high"
	ReportPriorityCritical = "critical"
)

// Report is one bug report captured by the widget or entered by hand.
type Report struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	ProjectID   uint     `gorm:"index;not null" json:"project_id"`
	Project     *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Title       string   `gorm:"size:500;not null" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	Status      string   `gorm:"size:20;default:open;index" json:"status"`
	Priority    string   `gorm:"size:20;default:medium" json:"priority"`

	ReporterName  string `gorm:"size:200" json:"reporter_name"`
	ReporterEmail string `gorm:"size:255" json:"reporter_email"`

	// Environment captured by the widget at submission time.
	PageURL    string `gorm:"size:1000" json:"page_url"`
	Browser    string `gorm:"size:200" json:"browser"`
	OS         string `gorm:"size:200" json:"os"`
	ScreenSize string `gorm:"size:50" json:"screen_size"`
	DeviceType string `gorm:"size:50" json:"device_type"`

	// Diagnostic payloads, stored as JSON arrays.
	ConsoleLogs   string `gorm:"type:text" json:"console_logs"`
	NetworkLogs   string `gorm:"type:text" json:"network_logs"`
	ActivityTrail string `gorm:"type:text" json:"activity_trail"`

	// External tracker linkage. IssueNumber nil means the report has never
	// been synced; once set it is kept even if a later sync fails.
	SyncStatus  string       `gorm:"size:20;default:none;index" json:"sync_status"`
	SyncError   string       `gorm:"type:text" json:"sync_error"`
	IssueNumber *int         `gorm:"index" json:"issue_number"`
	IssueURL    string       `gorm:"size:500" json:"issue_url"`
	SyncedAt    *time.Time   `json:"synced_at"`
	Attachments []Attachment `gorm:"foreignKey:ReportID" json:"attachments,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Report) TableName() string { return "reports" }

// Synced reports true when the report is linked to a tracker issue.
func (r *Report) Synced() bool {
	return r.IssueNumber != nil
}
