package models

import (
	"time"
)

// Topic groups posts. PostCount is a cache of the published posts in the
// topic and is only ever written by the counter synchronizer.
type Topic struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null;uniqueIndex" json:"name"`
	Slug        string    `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Description string    `json:"description"`
	Color       string    `gorm:"size:16" json:"color"`
	Icon        string    `gorm:"size:64" json:"icon"`
	PostCount   int       `gorm:"not null;default:0" json:"posts_count"`
	Active      bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
