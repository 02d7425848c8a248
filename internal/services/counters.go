package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"forumcore/internal/models"

	"gorm.io/gorm"
)

// CounterSync maintains the cross-entity counters (topic post_count and
// post comment_count) by reacting to lifecycle events inside the
// transaction that produced them. Counters of rows that no longer exist
// are silently skipped.
type CounterSync struct {
	db     *gorm.DB
	topics *TopicService
	log    *slog.Logger
}

func NewCounterSync(db *gorm.DB, topics *TopicService, log *slog.Logger) *CounterSync {
	return &CounterSync{db: db, topics: topics, log: log}
}

// Register subscribes the synchronizer to bus.
func (c *CounterSync) Register(bus *Dispatcher) {
	bus.Subscribe(c.Handle)
	bus.OnCommit(c.invalidate)
}

// invalidate drops the cached topic list once a post lifecycle change is
// durable.
func (c *CounterSync) invalidate(ev Event) {
	switch ev.(type) {
	case PostCreated, PostDeleted, PostPublished, PostUnpublished, PostTopicChanged:
		c.topics.Invalidate()
	}
}

// Handle is the TxHandler entry point.
func (c *CounterSync) Handle(tx *gorm.DB, ev Event) error {
	switch e := ev.(type) {
	case PostCreated:
		return c.RecomputeTopic(tx, e.TopicID)
	case PostDeleted:
		return c.RecomputeTopic(tx, e.TopicID)
	case PostPublished:
		return c.RecomputeTopic(tx, e.TopicID)
	case PostUnpublished:
		return c.RecomputeTopic(tx, e.TopicID)
	case PostTopicChanged:
		first, second := e.From, e.To
		if second < first {
			first, second = second, first
		}
		if err := c.RecomputeTopic(tx, first); err != nil {
			return err
		}
		return c.RecomputeTopic(tx, second)
	case CommentCreated:
		return c.adjustComments(tx, e.PostID, 1)
	case CommentDeleted:
		return c.adjustComments(tx, e.PostID, -1)
	}
	return nil
}

// RecomputeTopic sets post_count to the number of published posts in the
// topic.
func (c *CounterSync) RecomputeTopic(tx *gorm.DB, topicID uint) error {
	if topicID == 0 {
		return nil
	}
	var topic models.Topic
	err := forUpdate(tx).Select("id").Where("id = ?", topicID).Take(&topic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.log.Debug("topic vanished, post_count sync skipped", "topic", topicID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock topic %d: %w", topicID, err)
	}

	var count int64
	err = tx.Model(&models.Post{}).
		Where("topic_id = ? AND published_at IS NOT NULL", topicID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("count posts of topic %d: %w", topicID, err)
	}

	if err := tx.Model(&models.Topic{}).Where("id = ?", topicID).UpdateColumn("post_count", count).Error; err != nil {
		return fmt.Errorf("update topic %d post_count: %w", topicID, err)
	}
	return nil
}

// adjustComments moves comment_count by delta. Decrements never take the
// counter below zero.
func (c *CounterSync) adjustComments(tx *gorm.DB, postID uint, delta int) error {
	q := tx.Model(&models.Post{}).Where("id = ?", postID)
	if delta < 0 {
		q = q.Where("comment_count >= ?", -delta)
	}
	res := q.UpdateColumn("comment_count", gorm.Expr("comment_count + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("update post %d comment_count: %w", postID, res.Error)
	}
	if res.RowsAffected == 0 {
		c.log.Debug("comment_count sync skipped", "post", postID, "delta", delta)
	}
	return nil
}

// ReconcileTopics recomputes every topic's post_count and returns how many
// changed.
func (c *CounterSync) ReconcileTopics(ctx context.Context) (int, error) {
	var topics []models.Topic
	if err := c.db.WithContext(ctx).Order("id").Find(&topics).Error; err != nil {
		return 0, fmt.Errorf("list topics: %w", err)
	}

	updated := 0
	for _, t := range topics {
		var count int64
		err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := c.RecomputeTopic(tx, t.ID); err != nil {
				return err
			}
			return tx.Model(&models.Topic{}).Where("id = ?", t.ID).Select("post_count").Scan(&count).Error
		})
		if err != nil {
			return updated, err
		}
		if int(count) != t.PostCount {
			c.log.Info("topic post_count repaired", "topic", t.Name, "old", t.PostCount, "new", count)
			updated++
		}
	}
	if updated > 0 {
		c.topics.Invalidate()
	}
	return updated, nil
}

// ReconcileCommentCounts recomputes every post's comment_count from its
// non-deleted comments and returns how many changed.
func (c *CounterSync) ReconcileCommentCounts(ctx context.Context) (int, error) {
	type row struct {
		ID           uint
		CommentCount int
		Actual       int
	}
	var rows []row
	err := c.db.WithContext(ctx).Model(&models.Post{}).
		Select("posts.id, posts.comment_count, " +
			"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.is_deleted = ?) AS actual", false).
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}

	updated := 0
	for _, r := range rows {
		if r.CommentCount == r.Actual {
			continue
		}
		if err := c.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", r.ID).
			UpdateColumn("comment_count", r.Actual).Error; err != nil {
			return updated, fmt.Errorf("update post %d comment_count: %w", r.ID, err)
		}
		c.log.Info("post comment_count repaired", "post", r.ID, "old", r.CommentCount, "new", r.Actual)
		updated++
	}
	return updated, nil
}
