package services

import (
	"context"
	"fmt"
	"log/slog"

	"forumcore/internal/models"

	"gorm.io/gorm"
)

// ScoreAggregator keeps the denormalized score of posts and comments equal
// to the signed sum of their ledger rows. It always recomputes in full so
// any drift is repaired by the next vote on the entity.
type ScoreAggregator struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewScoreAggregator(db *gorm.DB, log *slog.Logger) *ScoreAggregator {
	return &ScoreAggregator{db: db, log: log}
}

// Sum returns the ledger total for v without writing anything.
func (a *ScoreAggregator) Sum(tx *gorm.DB, v models.Votable) (int, error) {
	var sum int64
	err := tx.Model(&models.Vote{}).
		Where("votable_type = ? AND votable_id = ?", v.Type, v.ID).
		Select("COALESCE(SUM(direction), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("sum votes %s: %w", v, err)
	}
	return int(sum), nil
}

// Recompute writes the ledger total to the entity's score column. It must
// be called with the transaction that mutated the ledger.
func (a *ScoreAggregator) Recompute(tx *gorm.DB, v models.Votable) (int, error) {
	sum, err := a.Sum(tx, v)
	if err != nil {
		return 0, err
	}

	var res *gorm.DB
	switch v.Type {
	case models.VotablePost:
		res = tx.Model(&models.Post{}).Where("id = ?", v.ID).UpdateColumn("score", sum)
	case models.VotableComment:
		res = tx.Model(&models.Comment{}).Where("id = ?", v.ID).UpdateColumn("score", sum)
	default:
		return 0, validationError("unknown votable type %q", v.Type)
	}
	if res.Error != nil {
		return 0, fmt.Errorf("write score %s: %w", v, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, notFoundError("%s does not exist", v)
	}
	return sum, nil
}

// ReconcileScores recomputes every post and comment score and returns how
// many were out of date.
func (a *ScoreAggregator) ReconcileScores(ctx context.Context) (int, error) {
	fixed := 0
	for _, vt := range []models.VotableType{models.VotablePost, models.VotableComment} {
		n, err := a.reconcileType(ctx, vt)
		if err != nil {
			return fixed, err
		}
		fixed += n
	}
	return fixed, nil
}

type scoreRow struct {
	ID    uint
	Score int
}

func (a *ScoreAggregator) reconcileType(ctx context.Context, vt models.VotableType) (int, error) {
	var rows []scoreRow
	q := a.db.WithContext(ctx)
	switch vt {
	case models.VotablePost:
		q = q.Model(&models.Post{})
	default:
		q = q.Model(&models.Comment{})
	}
	if err := q.Select("id, score").Order("id").Scan(&rows).Error; err != nil {
		return 0, fmt.Errorf("list %s scores: %w", vt, err)
	}

	fixed := 0
	for _, row := range rows {
		v := models.Votable{Type: vt, ID: row.ID}
		var sum int
		err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			sum, err = a.Recompute(tx, v)
			return err
		})
		if err != nil {
			return fixed, err
		}
		if sum != row.Score {
			a.log.Info("score repaired", "votable", v.String(), "old", row.Score, "new", sum)
			fixed++
		}
	}
	return fixed, nil
}
