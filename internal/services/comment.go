package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"

	"forumcore/internal/metrics"
	"forumcore/internal/models"
	"forumcore/internal/utils"

	"gorm.io/gorm"
)

const MaxCommentLength = 10000

// ThreadNode is one comment of a thread with its replies and the viewer's
// vote on it.
type ThreadNode struct {
	*models.Comment
	UserVote *int          `json:"user_vote"`
	Replies  []*ThreadNode `json:"replies"`
}

type CommentService struct {
	store
	votes   *VoteService
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewCommentService(s store, votes *VoteService, m *metrics.Metrics, log *slog.Logger) *CommentService {
	return &CommentService{store: s, votes: votes, metrics: m, log: log}
}

func cleanCommentContent(raw string) (string, error) {
	content := utils.SanitizeText(raw)
	if content == "" {
		return "", validationError("comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", validationError("comment content exceeds %d characters", MaxCommentLength)
	}
	return content, nil
}

// Create adds a comment to postID. A reply must target a comment of the
// same post and sits one level below it; there is no depth limit.
func (s *CommentService) Create(ctx context.Context, authorID, postID uint, content string, parentID *uint) (*models.Comment, error) {
	if authorID == 0 {
		return nil, validationError("author id is required")
	}
	content, err := cleanCommentContent(content)
	if err != nil {
		return nil, err
	}

	var comment *models.Comment
	err = s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.lock(u.tx, models.PostVotable(postID).LockKey()); err != nil {
			return err
		}

		var post models.Post
		if err := u.tx.Select("id", "locked").Take(&post, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("post %d does not exist", postID)
			}
			return fmt.Errorf("load post: %w", err)
		}
		if post.Locked {
			return validationError("post %d is locked", postID)
		}

		depth := 0
		if parentID != nil {
			var parent models.Comment
			if err := u.tx.Select("id", "post_id", "depth").Take(&parent, *parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return validationError("parent comment %d does not exist", *parentID)
				}
				return fmt.Errorf("load parent comment: %w", err)
			}
			if parent.PostID != postID {
				return validationError("parent comment %d belongs to another post", *parentID)
			}
			depth = parent.Depth + 1
		}

		comment = &models.Comment{
			PostID:   postID,
			AuthorID: authorID,
			ParentID: parentID,
			Content:  content,
			Depth:    depth,
		}
		if err := u.tx.Create(comment).Error; err != nil {
			return classifyStoreError("insert comment", err)
		}
		return u.publish(CommentCreated{CommentID: comment.ID, PostID: postID})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CommentEvent("created")
	return comment, nil
}

// Update replaces the content of a live comment owned by userID.
func (s *CommentService) Update(ctx context.Context, commentID, userID uint, content string) (*models.Comment, error) {
	content, err := cleanCommentContent(content)
	if err != nil {
		return nil, err
	}

	var comment models.Comment
	err = s.inTx(ctx, func(u *unitOfWork) error {
		if err := loadOwnedComment(u.tx, commentID, userID, &comment); err != nil {
			return err
		}
		if comment.Deleted {
			return validationError("comment %d is deleted", commentID)
		}
		if err := u.tx.Model(&comment).Update("content", content).Error; err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		comment.Content = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CommentEvent("updated")
	return &comment, nil
}

// SoftDelete tombstones a comment owned by userID. Replies stay in place.
// Deleting an already deleted comment changes nothing.
func (s *CommentService) SoftDelete(ctx context.Context, commentID, userID uint) error {
	deleted := false
	err := s.inTx(ctx, func(u *unitOfWork) error {
		var comment models.Comment
		if err := loadOwnedComment(u.tx, commentID, userID, &comment); err != nil {
			return err
		}
		if err := s.lock(u.tx, models.PostVotable(comment.PostID).LockKey()); err != nil {
			return err
		}

		res := u.tx.Model(&models.Comment{}).
			Where("id = ? AND is_deleted = ?", commentID, false).
			Updates(map[string]any{"is_deleted": true, "content": models.CommentTombstone})
		if res.Error != nil {
			return fmt.Errorf("soft delete comment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return u.publish(CommentDeleted{CommentID: commentID, PostID: comment.PostID})
	})
	if err != nil {
		return err
	}

	if deleted {
		s.metrics.CommentEvent("deleted")
	}
	return nil
}

func loadOwnedComment(tx *gorm.DB, commentID, userID uint, dst *models.Comment) error {
	if err := tx.Take(dst, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("comment %d does not exist", commentID)
		}
		return fmt.Errorf("load comment: %w", err)
	}
	if dst.AuthorID != userID {
		return authorizationError("comment %d is not owned by user %d", commentID, userID)
	}
	return nil
}

// ListThread returns the root comments of postID with their replies nested
// to any depth. Siblings are ordered by score, then age. viewerID may be
// nil for anonymous readers.
func (s *CommentService) ListThread(ctx context.Context, postID uint, viewerID *uint) ([]*ThreadNode, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if exists == 0 {
		return nil, notFoundError("post %d does not exist", postID)
	}

	var comments []models.Comment
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}

	var votes map[uint]int
	if viewerID != nil {
		ids := make([]uint, len(comments))
		for i := range comments {
			ids[i] = comments[i].ID
		}
		var err error
		if votes, err = s.votes.UserVotes(ctx, *viewerID, models.VotableComment, ids); err != nil {
			return nil, err
		}
	}

	return buildThread(comments, votes), nil
}

// buildThread assembles the forest keyed by parent id. Comments whose
// parent is missing from the set are promoted to roots.
func buildThread(comments []models.Comment, votes map[uint]int) []*ThreadNode {
	nodes := make(map[uint]*ThreadNode, len(comments))
	for i := range comments {
		n := &ThreadNode{Comment: &comments[i], Replies: []*ThreadNode{}}
		if d, ok := votes[comments[i].ID]; ok {
			n.UserVote = &d
		}
		nodes[comments[i].ID] = n
	}

	roots := []*ThreadNode{}
	for i := range comments {
		n := nodes[comments[i].ID]
		if pid := comments[i].ParentID; pid != nil {
			if parent, ok := nodes[*pid]; ok {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	sortThread(roots)
	return roots
}

func sortThread(nodes []*ThreadNode) {
	slices.SortFunc(nodes, func(a, b *ThreadNode) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	for _, n := range nodes {
		sortThread(n.Replies)
	}
}
