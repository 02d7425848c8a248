package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"forumcore/internal/metrics"
	"forumcore/internal/models"

	"gorm.io/gorm"
)

type VoteAction string

const (
	VoteCreated VoteAction = "created"
	VoteRemoved VoteAction = "removed"
	VoteUpdated VoteAction = "updated"
)

// VoteOutcome is the result of a toggle vote. UserVote is nil when the
// voter no longer has a vote on the entity.
type VoteOutcome struct {
	Action   VoteAction
	Score    int
	UserVote *int
}

// VoteService is the vote ledger: one row per (voter, votable) with
// toggle semantics.
type VoteService struct {
	store
	scores  *ScoreAggregator
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewVoteService(s store, scores *ScoreAggregator, m *metrics.Metrics, log *slog.Logger) *VoteService {
	return &VoteService{store: s, scores: scores, metrics: m, log: log}
}

// CastVote applies a toggle vote:
//   - no existing vote: insert it (created)
//   - same direction: retract it (removed)
//   - opposite direction: flip it (updated)
//
// The score is recomputed in the same transaction, so the returned score
// always reflects the ledger. A lost insert race returns ErrConflict; the
// caller should resubmit, which then resolves as removed or updated.
func (s *VoteService) CastVote(ctx context.Context, voterID uint, target models.Votable, direction int) (*VoteOutcome, error) {
	if direction != models.Upvote && direction != models.Downvote {
		return nil, validationError("vote direction must be 1 or -1, got %d", direction)
	}
	if !target.Valid() {
		return nil, validationError("invalid votable %q/%d", target.Type, target.ID)
	}
	if voterID == 0 {
		return nil, validationError("voter id is required")
	}

	var outcome *VoteOutcome
	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.lock(u.tx, target.LockKey()); err != nil {
			return err
		}

		postID, err := votableOwner(forUpdate(u.tx), target)
		if err != nil {
			return err
		}

		var existing models.Vote
		err = u.tx.
			Where("voter_id = ? AND votable_type = ? AND votable_id = ?", voterID, target.Type, target.ID).
			Take(&existing).Error

		var action VoteAction
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote := models.Vote{
				VoterID:     voterID,
				VotableType: target.Type,
				VotableID:   target.ID,
				Direction:   direction,
			}
			if err := u.tx.Create(&vote).Error; err != nil {
				if isUniqueViolation(err) {
					return conflictError("concurrent vote by %d on %s", voterID, target)
				}
				return fmt.Errorf("insert vote: %w", err)
			}
			action = VoteCreated
		case err != nil:
			return fmt.Errorf("load vote: %w", err)
		case existing.Direction == direction:
			if err := u.tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("delete vote: %w", err)
			}
			action = VoteRemoved
		default:
			if err := u.tx.Model(&existing).Update("direction", direction).Error; err != nil {
				return fmt.Errorf("update vote: %w", err)
			}
			action = VoteUpdated
		}

		score, err := s.scores.Recompute(u.tx, target)
		if err != nil {
			return err
		}

		outcome = &VoteOutcome{Action: action, Score: score}
		if action != VoteRemoved {
			d := direction
			outcome.UserVote = &d
		}
		return u.publish(VoteCast{Votable: target, PostID: postID, Action: action, Score: score})
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.Conflict("vote")
		}
		return nil, err
	}

	s.metrics.VoteCast(string(target.Type), string(outcome.Action))
	s.log.Debug("vote cast", "voter", voterID, "votable", target.String(), "action", outcome.Action, "score", outcome.Score)
	return outcome, nil
}

// UserVote returns the voter's current direction on target, or nil.
func (s *VoteService) UserVote(ctx context.Context, voterID uint, target models.Votable) (*int, error) {
	if voterID == 0 {
		return nil, nil
	}
	var vote models.Vote
	err := s.db.WithContext(ctx).
		Where("voter_id = ? AND votable_type = ? AND votable_id = ?", voterID, target.Type, target.ID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load vote: %w", err)
	}
	d := vote.Direction
	return &d, nil
}

// UserVotes returns the voter's directions on the given entities of one
// type, keyed by entity id. Entities without a vote are absent.
func (s *VoteService) UserVotes(ctx context.Context, voterID uint, vt models.VotableType, ids []uint) (map[uint]int, error) {
	out := make(map[uint]int)
	if voterID == 0 || len(ids) == 0 {
		return out, nil
	}
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Where("voter_id = ? AND votable_type = ? AND votable_id IN ?", voterID, vt, ids).
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	for _, v := range votes {
		out[v.VotableID] = v.Direction
	}
	return out, nil
}

// votableOwner checks the entity exists and returns the post it belongs to.
// Pass a locking query to hold the entity row.
func votableOwner(tx *gorm.DB, v models.Votable) (uint, error) {
	switch v.Type {
	case models.VotablePost:
		var post models.Post
		if err := tx.Select("id").Take(&post, v.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, notFoundError("post %d does not exist", v.ID)
			}
			return 0, fmt.Errorf("load post: %w", err)
		}
		return post.ID, nil
	case models.VotableComment:
		var comment models.Comment
		if err := tx.Select("id", "post_id").Take(&comment, v.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, notFoundError("comment %d does not exist", v.ID)
			}
			return 0, fmt.Errorf("load comment: %w", err)
		}
		return comment.PostID, nil
	}
	return 0, validationError("unknown votable type %q", v.Type)
}
