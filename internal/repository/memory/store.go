// Package memory is an in-process implementation of the drop, entry,
// subscription and membership stores. It honours the same uniqueness and
// inventory rules as the MySQL repositories and backs the service tests
// and local runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/repository"
)

type entryKey struct {
	userID, dropID, productID string
}

type subKey struct {
	userID, dropID string
}

// Store keeps every table behind one mutex, so multi-row operations such
// as CommitSelection are atomic.
type Store struct {
	mu            sync.RWMutex
	drops         map[string]*model.Drop
	entries       map[string]*model.DrawEntry
	entryIndex    map[entryKey]string
	codes         map[string]struct{}
	subscriptions map[subKey]*model.DropNotificationSubscription
	users         map[string]model.Subscriber
	members       map[string]bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		drops:         make(map[string]*model.Drop),
		entries:       make(map[string]*model.DrawEntry),
		entryIndex:    make(map[entryKey]string),
		codes:         make(map[string]struct{}),
		subscriptions: make(map[subKey]*model.DropNotificationSubscription),
		users:         make(map[string]model.Subscriber),
		members:       make(map[string]bool),
	}
}

// AddUser registers contact data used by ListUnnotifiedSubscribers.
func (s *Store) AddUser(u model.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

// SetMembership marks a user as an active member or not.
func (s *Store) SetMembership(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[userID] = active
}

// HasActiveMembership implements the membership lookup.
func (s *Store) HasActiveMembership(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[userID], nil
}

// CreateDrop stores a copy of d.
func (s *Store) CreateDrop(ctx context.Context, d *model.Drop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drops[d.ID]; exists {
		return repository.ErrConflict
	}
	seen := make(map[string]struct{}, len(d.Allocations))
	for _, a := range d.Allocations {
		if _, dup := seen[a.ProductID]; dup {
			return repository.ErrConflict
		}
		seen[a.ProductID] = struct{}{}
	}
	s.drops[d.ID] = cloneDrop(d)
	return nil
}

// GetDrop returns a copy of the drop or repository.ErrNotFound.
func (s *Store) GetDrop(ctx context.Context, id string) (*model.Drop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneDrop(d), nil
}

// ListDrops filters and orders drops like the SQL implementation.
func (s *Store) ListDrops(ctx context.Context, f repository.DropFilter) ([]model.Drop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Drop{}
	for _, d := range s.drops {
		if !matches(d, f) {
			continue
		}
		out = append(out, *cloneDrop(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(d *model.Drop, f repository.DropFilter) bool {
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if d.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Type != nil && d.Type != *f.Type {
		return false
	}
	if f.StartFrom != nil && d.StartTime.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && d.StartTime.After(*f.StartTo) {
		return false
	}
	return true
}

// UpdateStatus changes the status only while it still equals from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to model.DropStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drops[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	d.UpdatedAt = at
	return true, nil
}

// MarkDrawCompleted sets the draw flags on a drop.
func (s *Store) MarkDrawCompleted(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drops[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.DrawCompleted = true
	t := at
	d.DrawCompletedAt = &t
	d.UpdatedAt = at
	return nil
}

// DecrementRemaining takes qty units from an allocation.
func (s *Store) DecrementRemaining(ctx context.Context, allocationID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.allocation(allocationID)
	if a == nil {
		return repository.ErrNotFound
	}
	if a.RemainingQuantity < qty {
		return repository.ErrInsufficientInventory
	}
	a.RemainingQuantity -= qty
	return nil
}

// Stats counts drops and entries.
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.Stats{TotalDrops: int64(len(s.drops)), TotalEntries: int64(len(s.entries))}
	for _, d := range s.drops {
		switch d.Status {
		case model.DropStatusUpcoming:
			st.UpcomingDrops++
		case model.DropStatusLive:
			st.LiveDrops++
		}
		if d.Type == model.DropTypeDraw {
			st.DrawDrops++
		}
	}
	return st, nil
}

// CreateEntry inserts an entry, enforcing (user, drop, product) and entry
// code uniqueness.
func (s *Store) CreateEntry(ctx context.Context, e *model.DrawEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{e.UserID, e.DropID, e.ProductID}
	if _, exists := s.entryIndex[key]; exists {
		return repository.ErrDuplicateEntry
	}
	if _, taken := s.codes[e.EntryCode]; taken {
		return repository.ErrEntryCodeTaken
	}
	c := cloneEntry(e)
	s.entries[c.ID] = c
	s.entryIndex[key] = c.ID
	s.codes[c.EntryCode] = struct{}{}
	return nil
}

// ListPendingEntries returns PENDING entries for one product of a drop in
// creation order.
func (s *Store) ListPendingEntries(ctx context.Context, dropID, productID string) ([]model.DrawEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.DrawEntry{}
	for _, e := range s.entries {
		if e.DropID == dropID && e.ProductID == productID && e.Status == model.EntryStatusPending {
			out = append(out, *cloneEntry(e))
		}
	}
	sortEntries(out, false)
	return out, nil
}

// ListUserEntries returns a user's entries, newest first.
func (s *Store) ListUserEntries(ctx context.Context, userID string) ([]model.DrawEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.DrawEntry{}
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, *cloneEntry(e))
		}
	}
	sortEntries(out, true)
	return out, nil
}

// LatestEntryForDrop returns the newest entry of the user in the drop.
func (s *Store) LatestEntryForDrop(ctx context.Context, userID, dropID string) (*model.DrawEntry, error) {
	entries, _ := s.ListUserEntries(ctx, userID)
	for i := range entries {
		if entries[i].DropID == dropID {
			return &entries[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetEntry returns the entry for (user, drop, product).
func (s *Store) GetEntry(ctx context.Context, userID, dropID, productID string) (*model.DrawEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entryIndex[entryKey{userID, dropID, productID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneEntry(s.entries[id]), nil
}

// UpdateEntryStatus moves an entry between statuses.
func (s *Store) UpdateEntryStatus(ctx context.Context, entryID string, from, to model.EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok || e.Status != from {
		return repository.ErrConflict
	}
	e.Status = to
	return nil
}

// CommitSelection validates the whole commit before applying any of it.
func (s *Store) CommitSelection(ctx context.Context, c repository.SelectionCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drops[c.DropID]
	if !ok {
		return repository.ErrNotFound
	}
	var alloc *model.DropAllocation
	for i := range d.Allocations {
		if d.Allocations[i].ID == c.AllocationID {
			alloc = &d.Allocations[i]
		}
	}
	if alloc == nil {
		return repository.ErrNotFound
	}
	if alloc.RemainingQuantity < len(c.Winners) {
		return repository.ErrInsufficientInventory
	}
	for _, ids := range [][]string{c.Winners, c.Losers} {
		for _, id := range ids {
			e, ok := s.entries[id]
			if !ok || e.Status != model.EntryStatusPending {
				return repository.ErrEntryNotPending
			}
		}
	}

	at := c.SelectedAt
	for _, id := range c.Winners {
		e := s.entries[id]
		e.Status = model.EntryStatusSelected
		e.SelectedAt = &at
	}
	for _, id := range c.Losers {
		s.entries[id].Status = model.EntryStatusNotSelected
	}
	alloc.RemainingQuantity -= len(c.Winners)
	return nil
}

// Subscribe is idempotent.
func (s *Store) Subscribe(ctx context.Context, userID, dropID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subKey{userID, dropID}
	if _, ok := s.subscriptions[key]; ok {
		return nil
	}
	s.subscriptions[key] = &model.DropNotificationSubscription{UserID: userID, DropID: dropID, CreatedAt: at}
	return nil
}

// Unsubscribe removes the subscription if present.
func (s *Store) Unsubscribe(ctx context.Context, userID, dropID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, subKey{userID, dropID})
	return nil
}

// IsSubscribed reports whether the subscription exists.
func (s *Store) IsSubscribed(ctx context.Context, userID, dropID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscriptions[subKey{userID, dropID}]
	return ok, nil
}

// ListUnnotifiedSubscribers returns contact data for unnotified
// subscriptions whose user is known.
func (s *Store) ListUnnotifiedSubscribers(ctx context.Context, dropID string) ([]model.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := []*model.DropNotificationSubscription{}
	for k, sub := range s.subscriptions {
		if k.dropID == dropID && !sub.Notified {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].UserID < subs[j].UserID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})

	out := []model.Subscriber{}
	for _, sub := range subs {
		if u, ok := s.users[sub.UserID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// MarkNotified flags all unnotified subscriptions of the drop.
func (s *Store) MarkNotified(ctx context.Context, dropID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, sub := range s.subscriptions {
		if k.dropID == dropID && !sub.Notified {
			t := at
			sub.Notified = true
			sub.NotifiedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *Store) allocation(id string) *model.DropAllocation {
	for _, d := range s.drops {
		for i := range d.Allocations {
			if d.Allocations[i].ID == id {
				return &d.Allocations[i]
			}
		}
	}
	return nil
}

func sortEntries(entries []model.DrawEntry, newestFirst bool) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if newestFirst {
			a, b = b, a
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func cloneDrop(d *model.Drop) *model.Drop {
	c := *d
	c.Allocations = append([]model.DropAllocation{}, d.Allocations...)
	c.EndTime = cloneTime(d.EndTime)
	c.EarlyAccessStart = cloneTime(d.EarlyAccessStart)
	c.DrawCompletedAt = cloneTime(d.DrawCompletedAt)
	if d.TeaserText != nil {
		t := *d.TeaserText
		c.TeaserText = &t
	}
	return &c
}

func cloneEntry(e *model.DrawEntry) *model.DrawEntry {
	c := *e
	c.SelectedAt = cloneTime(e.SelectedAt)
	if e.VariantID != nil {
		v := *e.VariantID
		c.VariantID = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
