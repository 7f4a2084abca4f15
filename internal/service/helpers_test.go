package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/limited-drops/internal/clock"
	"github.com/iliyamo/limited-drops/internal/lock"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/queue"
	"github.com/iliyamo/limited-drops/internal/repository/memory"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu        sync.Mutex
	live      []queue.DropLiveEvent
	completed []queue.DrawCompletedEvent
	err       error
}

func (p *recordingPublisher) PublishDropLive(ctx context.Context, events []queue.DropLiveEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.live = append(p.live, events...)
	return nil
}

func (p *recordingPublisher) PublishDrawCompleted(ctx context.Context, event queue.DrawCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.completed = append(p.completed, event)
	return nil
}

type harness struct {
	store  *memory.Store
	clock  *clock.FakeClock
	events *recordingPublisher
	drops  *DropService
	draws  *DrawService
	notify *NotificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  memory.NewStore(),
		clock:  clock.Fake(epoch),
		events: &recordingPublisher{},
	}
	h.drops = NewDropService(h.store, h.store, h.clock)
	h.draws = NewDrawService(h.store, h.store, lock.NewLocalLocker(), h.events, h.clock)
	h.notify = NewNotificationService(h.store, h.store, h.events, h.clock)
	return h
}

// createDrop stores a drop of typ starting at start with one allocation
// per product id in quantities.
func (h *harness) createDrop(t *testing.T, typ model.DropType, start time.Time, quantities map[string]int) *model.Drop {
	t.Helper()
	in := CreateDropInput{
		Name:      "Drop " + string(typ),
		Type:      typ,
		StartTime: start,
	}
	for product, qty := range quantities {
		in.Allocations = append(in.Allocations, AllocationInput{ProductID: product, Quantity: qty})
	}
	d, err := h.drops.CreateDrop(context.Background(), in)
	require.NoError(t, err)
	return d
}

func (h *harness) enter(t *testing.T, dropID, productID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := h.draws.EnterDraw(context.Background(), u, dropID, productID, nil)
		require.NoError(t, err)
	}
}

func (h *harness) entriesByStatus(t *testing.T, dropID string, users []string) map[model.EntryStatus]int {
	t.Helper()
	out := map[model.EntryStatus]int{}
	for _, u := range users {
		entries, err := h.store.ListUserEntries(context.Background(), u)
		require.NoError(t, err)
		for _, e := range entries {
			if e.DropID == dropID {
				out[e.Status]++
			}
		}
	}
	return out
}
