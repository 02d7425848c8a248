package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"forumcore/internal/models"
	"forumcore/internal/utils"

	"gorm.io/gorm"
)

const topicListCacheKey = "topics:active"

type TopicService struct {
	db    *gorm.DB
	cache *utils.Cache

	mu  sync.Mutex
	gen uint64 // bumped by Invalidate
}

func NewTopicService(db *gorm.DB, cache *utils.Cache) *TopicService {
	return &TopicService{db: db, cache: cache}
}

// List returns the active topics ordered by name. The result is cached
// until a post lifecycle change touches a topic counter. Callers get their
// own copy.
func (s *TopicService) List(ctx context.Context) ([]models.Topic, error) {
	if v, ok := s.cache.Get(topicListCacheKey); ok {
		return slices.Clone(v.([]models.Topic)), nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	var topics []models.Topic
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	// 读取期间发生过失效则不回填，避免缓存旧数据
	s.mu.Lock()
	if s.gen == gen {
		s.cache.Set(topicListCacheKey, slices.Clone(topics))
	}
	s.mu.Unlock()
	return topics, nil
}

// Invalidate drops the cached list. A List already reading from the
// database when Invalidate runs does not repopulate the cache.
func (s *TopicService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cache.Delete(topicListCacheKey)
}

func (s *TopicService) GetBySlug(ctx context.Context, slug string) (*models.Topic, error) {
	var topic models.Topic
	err := s.db.WithContext(ctx).Where("slug = ?", slug).Take(&topic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("topic %q does not exist", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("load topic: %w", err)
	}
	return &topic, nil
}
