package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"forumcore/internal/config"
	"forumcore/internal/metrics"
	"forumcore/internal/models"
	"forumcore/internal/utils"

	"gorm.io/gorm"
)

// Forum wires the services around one database handle and one event bus.
type Forum struct {
	Bus      *Dispatcher
	Scores   *ScoreAggregator
	Votes    *VoteService
	Comments *CommentService
	Counters *CounterSync
	Views    *ViewService
	Posts    *PostService
	Topics   *TopicService
	Ranking  *RankingService

	conflictRetries int
}

func New(gdb *gorm.DB, cfg config.ForumConfig, m *metrics.Metrics, log *slog.Logger) (*Forum, error) {
	cache, err := utils.NewCache(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	bus := NewDispatcher(log)
	st := store{db: gdb, bus: bus, lockEntities: cfg.LockEntities}

	f := &Forum{Bus: bus, conflictRetries: cfg.VoteConflictRetries}
	f.Scores = NewScoreAggregator(gdb, log)
	f.Votes = NewVoteService(st, f.Scores, m, log)
	f.Comments = NewCommentService(st, f.Votes, m, log)
	f.Topics = NewTopicService(gdb, cache)
	f.Counters = NewCounterSync(gdb, f.Topics, log)
	f.Views = NewViewService(st, m, log)
	f.Posts = NewPostService(st, f.Votes, log)
	f.Ranking = NewRankingService(gdb, cfg.RankingInterval, log)

	f.Counters.Register(bus)
	f.Ranking.Register(bus)
	return f, nil
}

// CastVote is VoteService.CastVote with the configured number of retries on
// ErrConflict. A retry re-reads the ledger, so a lost insert race resolves
// as a toggle of the winner's row.
func (f *Forum) CastVote(ctx context.Context, voterID uint, target models.Votable, direction int) (*VoteOutcome, error) {
	var (
		out *VoteOutcome
		err error
	)
	for attempt := 0; attempt <= f.conflictRetries; attempt++ {
		out, err = f.Votes.CastVote(ctx, voterID, target, direction)
		if !errors.Is(err, ErrConflict) {
			return out, err
		}
		if attempt < f.conflictRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
			}
		}
	}
	return nil, err
}

// ReconcileReport is what a full reconciliation repaired.
type ReconcileReport struct {
	Topics   int
	Comments int
	Scores   int
}

// Reconcile recomputes every denormalized counter from the source rows.
func (f *Forum) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var (
		r   ReconcileReport
		err error
	)
	if r.Topics, err = f.Counters.ReconcileTopics(ctx); err != nil {
		return r, err
	}
	if r.Comments, err = f.Counters.ReconcileCommentCounts(ctx); err != nil {
		return r, err
	}
	if r.Scores, err = f.Scores.ReconcileScores(ctx); err != nil {
		return r, err
	}
	return r, nil
}
