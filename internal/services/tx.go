package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// unitOfWork is one transaction plus the events it produced.
type unitOfWork struct {
	tx     *gorm.DB
	events []Event
	bus    *Dispatcher
}

// publish runs the in-transaction subscribers for ev and remembers it for
// the post-commit listeners.
func (u *unitOfWork) publish(ev Event) error {
	if err := u.bus.Publish(u.tx, ev); err != nil {
		return err
	}
	u.events = append(u.events, ev)
	return nil
}

// store is shared by every service: the database handle, the event bus and
// the locking policy.
type store struct {
	db           *gorm.DB
	bus          *Dispatcher
	lockEntities bool
}

// inTx runs fn in a single transaction. Post-commit listeners see the
// events only if the transaction committed.
func (s *store) inTx(ctx context.Context, fn func(u *unitOfWork) error) error {
	var committed []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u := &unitOfWork{tx: tx, bus: s.bus}
		if err := fn(u); err != nil {
			return err
		}
		committed = u.events
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Committed(committed...)
	return nil
}

// lock takes a transaction-scoped advisory lock on key. It is a no-op
// unless entity locking is enabled and the store is postgres; sqlite
// already serializes writers.
func (s *store) lock(tx *gorm.DB, key string) error {
	if !s.lockEntities || tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

// forUpdate locks the rows read by the returned query until the transaction
// ends. Aggregates are recomputed only after their row is locked, so a
// concurrent writer's recompute always observes the previous commit.
// NO KEY UPDATE leaves foreign key checks from child inserts unblocked.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "NO KEY UPDATE"})
}
