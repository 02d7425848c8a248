package models

import (
	"time"
)

// CommentTombstone replaces the content of a soft-deleted comment.
const CommentTombstone = "[comment removed]"

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index:idx_comments_thread,priority:1" json:"post_id"`
	Post      *Post     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	AuthorID  uint      `gorm:"not null;index" json:"user_id"`
	ParentID  *uint     `gorm:"index:idx_comments_thread,priority:2" json:"parent_id"` // Nullable for top-level comments
	Parent    *Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Depth     int       `gorm:"not null;default:0" json:"depth"`
	Score     int       `gorm:"not null;default:0" json:"votes_count"`
	Deleted   bool      `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	CreatedAt time.Time `gorm:"index:idx_comments_thread,priority:3" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
