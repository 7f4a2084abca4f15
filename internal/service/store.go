// Package service holds the drop engine's business rules: access
// evaluation, the drop lifecycle state machine, draw entry and selection,
// countdowns, statistics and go-live notifications. Persistence, locking,
// membership and messaging are reached through the interfaces below.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/queue"
	"github.com/iliyamo/limited-drops/internal/repository"
)

// DropStore persists drops and their allocations.
type DropStore interface {
	CreateDrop(ctx context.Context, d *model.Drop) error
	GetDrop(ctx context.Context, id string) (*model.Drop, error)
	ListDrops(ctx context.Context, f repository.DropFilter) ([]model.Drop, error)
	UpdateStatus(ctx context.Context, id string, from, to model.DropStatus, at time.Time) (bool, error)
	MarkDrawCompleted(ctx context.Context, id string, at time.Time) error
	DecrementRemaining(ctx context.Context, allocationID string, qty int) error
	Stats(ctx context.Context) (model.Stats, error)
}

// EntryStore persists draw entries.
type EntryStore interface {
	CreateEntry(ctx context.Context, e *model.DrawEntry) error
	ListPendingEntries(ctx context.Context, dropID, productID string) ([]model.DrawEntry, error)
	ListUserEntries(ctx context.Context, userID string) ([]model.DrawEntry, error)
	LatestEntryForDrop(ctx context.Context, userID, dropID string) (*model.DrawEntry, error)
	GetEntry(ctx context.Context, userID, dropID, productID string) (*model.DrawEntry, error)
	UpdateEntryStatus(ctx context.Context, entryID string, from, to model.EntryStatus) error
	CommitSelection(ctx context.Context, c repository.SelectionCommit) error
}

// SubscriptionStore persists go-live notification opt-ins.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, userID, dropID string, at time.Time) error
	Unsubscribe(ctx context.Context, userID, dropID string) error
	IsSubscribed(ctx context.Context, userID, dropID string) (bool, error)
	ListUnnotifiedSubscribers(ctx context.Context, dropID string) ([]model.Subscriber, error)
	MarkNotified(ctx context.Context, dropID string, at time.Time) (int64, error)
}

// MembershipLookup answers whether a user holds an active membership.
type MembershipLookup interface {
	HasActiveMembership(ctx context.Context, userID string) (bool, error)
}

// EventPublisher hands events to the message broker.
type EventPublisher interface {
	PublishDropLive(ctx context.Context, events []queue.DropLiveEvent) error
	PublishDrawCompleted(ctx context.Context, event queue.DrawCompletedEvent) error
}

// Locker serialises selection passes per drop.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// translate maps repository sentinels onto application errors. Anything
// unknown becomes a storage error with the cause attached.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.ErrNotFound
	case errors.Is(err, repository.ErrDuplicateEntry):
		return apperr.ErrDuplicateEntry
	case errors.Is(err, repository.ErrInsufficientInventory):
		return apperr.ErrInvalidState.Msg("insufficient inventory")
	case errors.Is(err, repository.ErrEntryNotPending):
		return apperr.ErrInvalidState.Msg("entry already decided")
	case errors.Is(err, repository.ErrConflict):
		return apperr.ErrInvalidState
	}
	return apperr.Storage(err)
}

func dropNotFound(id string) error {
	return apperr.ErrNotFound.Msg("drop %s not found", id)
}
