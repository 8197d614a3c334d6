package models

import "time"

// Attachment is a file uploaded with a report, stored on local disk
// under the configured storage directory.
type Attachment struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	ReportID uint   `gorm:"index;not null" json:"report_id"`
	FileName string `gorm:"size:500;not null" json:"file_name"`
	FilePath string `gorm:"size:1000" json:"-"` // relative to the storage dir
	FileSize int64  `json:"file_size"`
	MimeType string `gorm:"size:200" json:"mime_type"`
	URL      string `gorm:"size:1000" json:"url"`

	CreatedAt time.Time `json:"created_at"`
}

func (Attachment) TableName() string { return "attachments" }
