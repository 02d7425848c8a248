package models

import (
	"time"
)

// View records one counted view of a post. ViewerKey is "user:<id>" for
// signed-in viewers and "ip:<addr>" for anonymous ones; the unique index
// on (post_id, viewer_key) is what makes view counting idempotent.
type View struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_views_post_viewer,priority:1;index:idx_views_post_time,priority:1" json:"post_id"`
	Post      *Post     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID    *uint     `gorm:"index" json:"user_id"` // nil for anonymous viewers
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	ViewerKey string    `gorm:"size:64;not null;uniqueIndex:idx_views_post_viewer,priority:2" json:"-"`
	ViewedAt  time.Time `gorm:"not null;index:idx_views_post_time,priority:2" json:"viewed_at"`
}
