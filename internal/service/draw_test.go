package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/repository"
)

func users(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user-%02d", i)
	}
	return out
}

func TestEnterDraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 2})

	variant := "size-42"
	e, err := h.draws.EnterDraw(ctx, "u-1", d.ID, "p-1", &variant)
	require.NoError(t, err)
	assert.Equal(t, model.EntryStatusPending, e.Status)
	assert.Regexp(t, `^DRW-[A-Z2-7]{16}$`, e.EntryCode)
	assert.Equal(t, epoch, e.CreatedAt)
	require.NotNil(t, e.VariantID)
	assert.Equal(t, variant, *e.VariantID)
	assert.Nil(t, e.SelectedAt)

	_, err = h.draws.EnterDraw(ctx, "u-1", d.ID, "p-1", nil)
	assert.ErrorIs(t, err, apperr.ErrDuplicateEntry)

	_, err = h.draws.EnterDraw(ctx, "u-1", d.ID, "p-404", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.draws.EnterDraw(ctx, "u-1", "missing", "p-1", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	std := h.createDrop(t, model.DropTypeStandard, epoch, map[string]int{"p-1": 2})
	_, err = h.draws.EnterDraw(ctx, "u-1", std.ID, "p-1", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidDropType)
}

func TestEnterDrawRetriesCodeCollisions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 2, "p-2": 2})

	codes := []string{"DRW-FIXED", "DRW-FIXED", "DRW-OTHER"}
	h.draws.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := h.draws.EnterDraw(ctx, "u-1", d.ID, "p-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "DRW-FIXED", first.EntryCode)

	second, err := h.draws.EnterDraw(ctx, "u-2", d.ID, "p-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "DRW-OTHER", second.EntryCode)
}

func TestEnterDrawGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 2})

	calls := 0
	h.draws.newCode = func() (string, error) {
		calls++
		return "DRW-SAME", nil
	}
	h.enter(t, d.ID, "p-1", "u-1")

	_, err := h.draws.EnterDraw(ctx, "u-2", d.ID, "p-1", nil)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.ErrorIs(t, err, repository.ErrEntryCodeTaken)
	assert.Equal(t, 1+entryCodeAttempts, calls)
}

func TestEnterDrawConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 2})

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, dup int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.draws.EnterDraw(ctx, "u-1", d.ID, "p-1", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrDuplicateEntry):
				dup++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
	entries, err := h.store.ListUserEntries(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunDrawSelectionScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	end := epoch.Add(48 * time.Hour)
	d, err := h.drops.CreateDrop(ctx, CreateDropInput{
		Name:        "Two pairs",
		Type:        model.DropTypeDraw,
		StartTime:   epoch,
		EndTime:     &end,
		Allocations: []AllocationInput{{ProductID: "p-1", Quantity: 2}},
	})
	require.NoError(t, err)
	entrants := users(5)
	h.enter(t, d.ID, "p-1", entrants...)

	h.clock.Advance(time.Hour)
	sum, err := h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawSummary{Selected: 2, NotSelected: 3}, sum)

	stored, err := h.store.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Allocations[0].RemainingQuantity)
	assert.Equal(t, model.DropStatusSoldOut, stored.Status)
	assert.True(t, stored.DrawCompleted)
	require.NotNil(t, stored.DrawCompletedAt)
	assert.Equal(t, h.clock.Now(), *stored.DrawCompletedAt)

	counts := h.entriesByStatus(t, d.ID, entrants)
	assert.Equal(t, map[model.EntryStatus]int{
		model.EntryStatusSelected:    2,
		model.EntryStatusNotSelected: 3,
	}, counts)

	require.Len(t, h.events.completed, 1)
	assert.Equal(t, 2, h.events.completed[0].Selected)
	assert.Equal(t, 3, h.events.completed[0].NotSelected)

	// idempotent re-run
	sum, err = h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawSummary{}, sum)
	assert.Equal(t, counts, h.entriesByStatus(t, d.ID, entrants))
}

func TestRunDrawSelectionEveryoneWinsWhenSupplySuffices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 10, "p-2": 1})
	h.enter(t, d.ID, "p-1", users(4)...)

	sum, err := h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawSummary{Selected: 4}, sum)

	stored, err := h.store.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	remaining := map[string]int{}
	for _, a := range stored.Allocations {
		remaining[a.ProductID] = a.RemainingQuantity
	}
	assert.Equal(t, map[string]int{"p-1": 6, "p-2": 1}, remaining)
	assert.Equal(t, model.DropStatusLive, stored.Status)
}

func TestRunDrawSelectionEmptyDrawCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 3})

	sum, err := h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawSummary{}, sum)

	stored, err := h.store.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, stored.DrawCompleted)
}

func TestRunDrawSelectionLateEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 3})
	first := users(2)
	h.enter(t, d.ID, "p-1", first...)

	sum, err := h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawSummary{Selected: 2}, sum)

	h.enter(t, d.ID, "p-1", "late-1", "late-2")
	sum, err = h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawSummary{Selected: 1, NotSelected: 1}, sum)
	assert.Equal(t, 2, h.entriesByStatus(t, d.ID, first)[model.EntryStatusSelected])
}

func TestRunDrawSelectionErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.draws.RunDrawSelection(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	std := h.createDrop(t, model.DropTypeStandard, epoch, map[string]int{"p-1": 1})
	_, err = h.draws.RunDrawSelection(ctx, std.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidDropType)
}

func TestRunDrawSelectionRejectsConcurrentPass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 1})

	release, err := h.draws.locker.Acquire(ctx, "draw:"+d.ID)
	require.NoError(t, err)
	_, err = h.draws.RunDrawSelection(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	release()
	_, err = h.draws.RunDrawSelection(ctx, d.ID)
	assert.NoError(t, err)
}

type brokenLocker struct{ err error }

func (l brokenLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, l.err
}

func TestRunDrawSelectionLockBackendFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 1})
	h.draws.locker = brokenLocker{err: errors.New("dial tcp: connection refused")}

	_, err := h.draws.RunDrawSelection(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.False(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestRunDrawSelectionConservesInventory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 3, "p-2": 5})
	entrants := users(12)
	h.enter(t, d.ID, "p-1", entrants...)
	h.enter(t, d.ID, "p-2", entrants[:4]...)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.draws.RunDrawSelection(ctx, d.ID)
		}()
	}
	wg.Wait()

	stored, err := h.store.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	for _, a := range stored.Allocations {
		selected := 0
		pending := 0
		for _, u := range entrants {
			e, err := h.store.GetEntry(ctx, u, d.ID, a.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			require.NoError(t, err)
			switch e.Status {
			case model.EntryStatusSelected:
				selected++
			case model.EntryStatusPending:
				pending++
			}
		}
		assert.GreaterOrEqual(t, a.RemainingQuantity, 0)
		assert.LessOrEqual(t, a.RemainingQuantity, a.AllocatedQuantity)
		assert.Equal(t, a.AllocatedQuantity-a.RemainingQuantity, selected, a.ProductID)
		assert.Zero(t, pending, a.ProductID)
	}
}

func TestRunDrawSelectionIsFair(t *testing.T) {
	const (
		entrants = 10
		slots    = 3
		trials   = 3000
	)
	wins := make(map[string]int, entrants)
	ids := users(entrants)

	for i := 0; i < trials; i++ {
		ctx := context.Background()
		h := newHarness(t)
		d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": slots})
		h.enter(t, d.ID, "p-1", ids...)
		_, err := h.draws.RunDrawSelection(ctx, d.ID)
		require.NoError(t, err)
		for _, u := range ids {
			e, err := h.store.GetEntry(ctx, u, d.ID, "p-1")
			require.NoError(t, err)
			if e.Status == model.EntryStatusSelected {
				wins[u]++
			}
		}
	}

	// expected 900 per entrant, sd ~25
	want := float64(trials*slots) / entrants
	for _, u := range ids {
		assert.InDelta(t, want, float64(wins[u]), 150, u)
	}
}

func TestGetDrawResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 1})

	res, err := h.draws.GetDrawResult(ctx, "u-1", d.ID)
	require.NoError(t, err)
	assert.Nil(t, res)

	h.enter(t, d.ID, "p-1", "u-1")
	res, err = h.draws.GetDrawResult(ctx, "u-1", d.ID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Entered)
	assert.False(t, res.Selected)
	assert.Equal(t, model.EntryStatusPending, res.Status)
	assert.Nil(t, res.PurchaseDeadline)

	h.clock.Advance(time.Hour)
	_, err = h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)

	res, err = h.draws.GetDrawResult(ctx, "u-1", d.ID)
	require.NoError(t, err)
	assert.True(t, res.Selected)
	require.NotNil(t, res.PurchaseDeadline)
	assert.Equal(t, epoch.Add(time.Hour+24*time.Hour), *res.PurchaseDeadline)
}

func TestGetDrawResultReportsNewestEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 1, "p-2": 1})

	h.enter(t, d.ID, "p-1", "u-1")
	h.clock.Advance(time.Second)
	h.enter(t, d.ID, "p-2", "u-1")

	res, err := h.draws.GetDrawResult(ctx, "u-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "p-2", res.ProductID)

	entries, err := h.draws.ListUserEntries(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p-2", entries[0].ProductID)
	assert.Equal(t, "p-1", entries[1].ProductID)
}

func TestMarkPurchased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 1})
	h.enter(t, d.ID, "p-1", "winner")

	_, err := h.draws.MarkPurchased(ctx, "winner", d.ID, "p-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)

	h.clock.Advance(PurchaseWindow)
	e, err := h.draws.MarkPurchased(ctx, "winner", d.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, model.EntryStatusPurchased, e.Status)

	_, err = h.draws.MarkPurchased(ctx, "winner", d.ID, "p-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = h.draws.MarkPurchased(ctx, "nobody", d.ID, "p-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkPurchasedAfterDeadline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeDraw, epoch, map[string]int{"p-1": 1})
	h.enter(t, d.ID, "p-1", "winner")
	_, err := h.draws.RunDrawSelection(ctx, d.ID)
	require.NoError(t, err)

	h.clock.Advance(PurchaseWindow + time.Second)
	_, err = h.draws.MarkPurchased(ctx, "winner", d.ID, "p-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
