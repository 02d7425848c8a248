package models

import (
	"fmt"
	"time"
)

type VotableType string

const (
	VotablePost    VotableType = "post"
	VotableComment VotableType = "comment"
)

// Votable identifies the entity a vote points at. It is stored as a
// discriminant column plus id on Vote.
type Votable struct {
	Type VotableType
	ID   uint
}

func PostVotable(id uint) Votable    { return Votable{Type: VotablePost, ID: id} }
func CommentVotable(id uint) Votable { return Votable{Type: VotableComment, ID: id} }

// Valid reports whether the discriminant is known and the id is set.
func (v Votable) Valid() bool {
	return (v.Type == VotablePost || v.Type == VotableComment) && v.ID != 0
}

// LockKey is the key used for per-entity advisory locks.
func (v Votable) LockKey() string {
	return fmt.Sprintf("%s:%d", v.Type, v.ID)
}

func (v Votable) String() string {
	return v.LockKey()
}

const (
	Upvote   = 1
	Downvote = -1
)

// Vote is the ledger row. At most one row exists per (voter, votable),
// enforced by idx_votes_voter_votable.
type Vote struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	VoterID     uint        `gorm:"not null;uniqueIndex:idx_votes_voter_votable,priority:1" json:"user_id"`
	VotableType VotableType `gorm:"size:16;not null;uniqueIndex:idx_votes_voter_votable,priority:2;index:idx_votes_votable,priority:1" json:"votable_type"`
	VotableID   uint        `gorm:"not null;uniqueIndex:idx_votes_voter_votable,priority:3;index:idx_votes_votable,priority:2" json:"votable_id"`
	Direction   int         `gorm:"not null;check:chk_votes_direction,direction IN (-1, 1)" json:"type"` // 1 or -1
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (v *Vote) Votable() Votable {
	return Votable{Type: v.VotableType, ID: v.VotableID}
}
