package models

import (
	"time"

	"gorm.io/gorm"
)

// Project represents one application whose bug reports are collected here
type Project struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:200;not null" json:"name"`
	Slug        string         `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Description string         `gorm:"size:1000" json:"description"`
	URL         string         `gorm:"size:500" json:"url"` // where the application runs
	Token       string         `gorm:"size:64;uniqueIndex;not null" json:"token"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedBy   uint           `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }
