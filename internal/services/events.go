package services

import (
	"fmt"
	"log/slog"
	"sync"

	"forumcore/internal/models"

	"gorm.io/gorm"
)

// Event is a lifecycle change of a forum entity.
type Event interface {
	EventName() string
}

type PostCreated struct {
	PostID, TopicID uint
}

type PostDeleted struct {
	PostID, TopicID uint
}

type PostTopicChanged struct {
	PostID   uint
	From, To uint
}

type PostPublished struct {
	PostID, TopicID uint
}

type PostUnpublished struct {
	PostID, TopicID uint
}

type CommentCreated struct {
	CommentID, PostID uint
}

type CommentDeleted struct {
	CommentID, PostID uint
}

type VoteCast struct {
	Votable models.Votable
	PostID  uint // owning post, for comment votes too
	Action  VoteAction
	Score   int
}

type ViewRecorded struct {
	PostID uint
}

func (PostCreated) EventName() string      { return "post.created" }
func (PostDeleted) EventName() string      { return "post.deleted" }
func (PostTopicChanged) EventName() string { return "post.topic_changed" }
func (PostPublished) EventName() string    { return "post.published" }
func (PostUnpublished) EventName() string  { return "post.unpublished" }
func (CommentCreated) EventName() string   { return "comment.created" }
func (CommentDeleted) EventName() string   { return "comment.deleted" }
func (VoteCast) EventName() string         { return "vote.cast" }
func (ViewRecorded) EventName() string     { return "view.recorded" }

// TxHandler runs inside the transaction that produced the event. A
// returned error aborts that transaction.
type TxHandler func(tx *gorm.DB, ev Event) error

// Handler runs after the producing transaction committed.
type Handler func(ev Event)

// Dispatcher delivers events to subscribers in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	inTx     []TxHandler
	onCommit []Handler
	log      *slog.Logger
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Subscribe registers a handler that runs inside the publishing transaction.
func (d *Dispatcher) Subscribe(h TxHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inTx = append(d.inTx, h)
}

// OnCommit registers a handler that runs once the transaction committed.
func (d *Dispatcher) OnCommit(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCommit = append(d.onCommit, h)
}

// Publish delivers ev to every in-transaction subscriber and stops at the
// first error.
func (d *Dispatcher) Publish(tx *gorm.DB, ev Event) error {
	d.mu.RLock()
	handlers := d.inTx
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(tx, ev); err != nil {
			return fmt.Errorf("handle %s: %w", ev.EventName(), err)
		}
	}
	return nil
}

// Committed delivers events to the post-commit listeners. Listener panics
// are recovered and logged; the data is already durable at this point.
func (d *Dispatcher) Committed(events ...Event) {
	d.mu.RLock()
	handlers := d.onCommit
	d.mu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			d.safeCall(h, ev)
		}
	}
}

func (d *Dispatcher) safeCall(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("post-commit handler panicked", "event", ev.EventName(), "panic", r)
		}
	}()
	h(ev)
}
