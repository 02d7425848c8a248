package models

import (
	"time"
)

type PostKind string

const (
	PostKindText  PostKind = "text"
	PostKindLink  PostKind = "link"
	PostKindImage PostKind = "image"
)

// Valid reports whether k is one of the known post kinds.
func (k PostKind) Valid() bool {
	switch k {
	case PostKindText, PostKindLink, PostKindImage:
		return true
	}
	return false
}

type Post struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Slug         string     `gorm:"size:300;not null;uniqueIndex" json:"slug"`
	Content      string     `gorm:"type:text" json:"content"`
	Kind         PostKind   `gorm:"size:16;not null;default:'text'" json:"type"`
	URL          string     `gorm:"size:500" json:"url,omitempty"`       // link posts
	ImageURL     string     `gorm:"size:500" json:"image_url,omitempty"` // image posts
	AuthorID     uint       `gorm:"not null;index" json:"user_id"`
	TopicID      uint       `gorm:"not null;index:idx_posts_topic_created,priority:1" json:"topic_id"`
	Topic        *Topic     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"topic,omitempty"`
	Score        int        `gorm:"not null;default:0;index:idx_posts_score_created,priority:1" json:"votes_count"`
	CommentCount int        `gorm:"not null;default:0" json:"comments_count"`
	ViewCount    int        `gorm:"not null;default:0" json:"views_count"`
	HotRank      float64    `gorm:"not null;default:0;index" json:"hot_rank"` // 异步计算，仅用于排序
	Pinned       bool       `gorm:"not null;default:false" json:"is_pinned"`
	Locked       bool       `gorm:"not null;default:false" json:"is_locked"`
	PublishedAt  *time.Time `gorm:"index" json:"published_at"` // nil 表示草稿
	CreatedAt    time.Time  `gorm:"index:idx_posts_topic_created,priority:2;index:idx_posts_score_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Published reports whether the post counts towards its topic.
func (p *Post) Published() bool {
	return p.PublishedAt != nil
}
