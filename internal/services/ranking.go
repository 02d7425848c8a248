package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"forumcore/internal/models"
	"forumcore/internal/utils"

	"gorm.io/gorm"
)

const (
	rankQueueSize = 1000
	rankBatchSize = 50
)

// RankingService 异步计算帖子 hot_rank，仅用于排序，不属于一致性保证
type RankingService struct {
	db       *gorm.DB
	log      *slog.Logger
	cfg      utils.RankConfig
	interval time.Duration
	now      func() time.Time

	queue   chan uint // 待更新的帖子 ID 队列
	pending map[uint]bool
	mu      sync.Mutex
}

func NewRankingService(db *gorm.DB, interval time.Duration, log *slog.Logger) *RankingService {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &RankingService{
		db:       db,
		log:      log,
		cfg:      utils.DefaultRankConfig,
		interval: interval,
		now:      time.Now,
		queue:    make(chan uint, rankQueueSize),
		pending:  make(map[uint]bool),
	}
}

// Register schedules a recomputation for every committed engagement event.
func (s *RankingService) Register(bus *Dispatcher) {
	bus.OnCommit(func(ev Event) {
		switch e := ev.(type) {
		case VoteCast:
			s.ScheduleUpdate(e.PostID)
		case CommentCreated:
			s.ScheduleUpdate(e.PostID)
		case CommentDeleted:
			s.ScheduleUpdate(e.PostID)
		case ViewRecorded:
			s.ScheduleUpdate(e.PostID)
		case PostCreated:
			s.ScheduleUpdate(e.PostID)
		}
	})
}

// ScheduleUpdate 将帖子加入更新队列（异步），已在队列中的帖子直接跳过
func (s *RankingService) ScheduleUpdate(postID uint) {
	s.mu.Lock()
	if s.pending[postID] {
		s.mu.Unlock()
		return
	}
	s.pending[postID] = true
	s.mu.Unlock()

	select {
	case s.queue <- postID:
	default:
		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()
		s.log.Warn("ranking queue full, update dropped", "post", postID)
	}
}

// Run drains the queue in batches until ctx is cancelled. Whatever is still
// batched at cancellation is flushed before returning.
func (s *RankingService) Run(ctx context.Context) {
	batch := make([]uint, 0, rankBatchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				s.processBatch(context.WithoutCancel(ctx), batch)
			}
			return
		case postID := <-s.queue:
			batch = append(batch, postID)
			if len(batch) >= rankBatchSize {
				s.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *RankingService) processBatch(ctx context.Context, postIDs []uint) {
	for _, postID := range postIDs {
		s.mu.Lock()
		delete(s.pending, postID)
		s.mu.Unlock()

		if err := s.UpdateHotRank(ctx, postID); err != nil {
			s.log.Error("hot rank update failed", "post", postID, "err", err)
		}
	}
}

// UpdateHotRank recomputes hot_rank from the post's current aggregates. A
// post deleted in the meantime is skipped.
func (s *RankingService) UpdateHotRank(ctx context.Context, postID uint) error {
	var post models.Post
	err := s.db.WithContext(ctx).
		Select("id", "score", "comment_count", "view_count", "created_at").
		Take(&post, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rank := s.cfg.HotRank(post.CreatedAt, s.now(), post.Score, post.CommentCount, post.ViewCount)
	return s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("hot_rank", rank).Error
}

// RefreshRecent recomputes hot_rank for posts created within window plus
// the current top posts, so decay keeps moving without new engagement.
func (s *RankingService) RefreshRecent(ctx context.Context, window time.Duration, top int) (int, error) {
	processed := make(map[uint]bool)

	var recent []uint
	if err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("created_at >= ?", s.now().Add(-window)).
		Pluck("id", &recent).Error; err != nil {
		return 0, err
	}
	var best []uint
	if err := s.db.WithContext(ctx).Model(&models.Post{}).
		Order("hot_rank DESC").Limit(top).
		Pluck("id", &best).Error; err != nil {
		return 0, err
	}

	for _, id := range append(recent, best...) {
		if processed[id] {
			continue
		}
		processed[id] = true
		if err := s.UpdateHotRank(ctx, id); err != nil {
			return len(processed), err
		}
	}
	return len(processed), nil
}
