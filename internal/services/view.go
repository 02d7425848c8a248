package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"forumcore/internal/metrics"
	"forumcore/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ViewerIdentity identifies who is viewing a post. Authenticated viewers are
// keyed by user id only; anonymous viewers by IP address only.
type ViewerIdentity struct {
	UserID    *uint
	IPAddress string
	UserAgent string
}

func UserViewer(userID uint, ip, userAgent string) ViewerIdentity {
	return ViewerIdentity{UserID: &userID, IPAddress: ip, UserAgent: userAgent}
}

func AnonymousViewer(ip, userAgent string) ViewerIdentity {
	return ViewerIdentity{IPAddress: ip, UserAgent: userAgent}
}

// Key is the deduplication key stored in views.viewer_key.
func (v ViewerIdentity) Key() (string, error) {
	if v.UserID != nil {
		if *v.UserID == 0 {
			return "", validationError("viewer user id must be positive")
		}
		return fmt.Sprintf("user:%d", *v.UserID), nil
	}
	ip := strings.TrimSpace(v.IPAddress)
	if ip == "" {
		return "", validationError("anonymous viewer needs an ip address")
	}
	if len(ip) > 45 {
		return "", validationError("viewer ip address %q is malformed", truncate(ip, 45))
	}
	return "ip:" + ip, nil
}

type ViewResult struct {
	Counted bool
}

type ViewService struct {
	store
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewViewService(s store, m *metrics.Metrics, log *slog.Logger) *ViewService {
	return &ViewService{store: s, metrics: m, log: log}
}

// RecordView counts a view at most once per (post, viewer). The insert and
// the view_count increment share one transaction, so the counter always
// equals the number of distinct view rows.
func (s *ViewService) RecordView(ctx context.Context, postID uint, viewer ViewerIdentity) (ViewResult, error) {
	key, err := viewer.Key()
	if err != nil {
		return ViewResult{}, err
	}

	var result ViewResult
	err = s.inTx(ctx, func(u *unitOfWork) error {
		var post models.Post
		if err := u.tx.Select("id").Take(&post, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("post %d does not exist", postID)
			}
			return fmt.Errorf("load post: %w", err)
		}

		view := models.View{
			PostID:    postID,
			UserID:    viewer.UserID,
			IPAddress: truncate(viewer.IPAddress, 45),
			UserAgent: truncate(viewer.UserAgent, 255),
			ViewerKey: key,
			ViewedAt:  time.Now().UTC(),
		}
		res := u.tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "viewer_key"}},
			DoNothing: true,
		}).Create(&view)
		if res.Error != nil {
			return fmt.Errorf("insert view: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := u.tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
			return fmt.Errorf("increment view_count: %w", err)
		}
		result.Counted = true
		return u.publish(ViewRecorded{PostID: postID})
	})
	if err != nil {
		return ViewResult{}, err
	}

	s.metrics.ViewRecorded(result.Counted)
	return result, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
