package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/limited-drops/internal/model"
)

func TestDeriveStatus(t *testing.T) {
	end := epoch.Add(time.Hour)
	alloc := func(remaining ...int) []model.DropAllocation {
		out := make([]model.DropAllocation, len(remaining))
		for i, r := range remaining {
			out[i] = model.DropAllocation{AllocatedQuantity: 5, RemainingQuantity: r}
		}
		return out
	}

	tests := []struct {
		name string
		drop model.Drop
		now  time.Time
		want model.DropStatus
	}{
		{"before start", model.Drop{StartTime: epoch, Allocations: alloc(5)}, epoch.Add(-time.Second), model.DropStatusUpcoming},
		{"at start", model.Drop{StartTime: epoch, Allocations: alloc(5)}, epoch, model.DropStatusLive},
		{"at end is still live", model.Drop{StartTime: epoch, EndTime: &end, Allocations: alloc(5)}, end, model.DropStatusLive},
		{"after end", model.Drop{StartTime: epoch, EndTime: &end, Allocations: alloc(5)}, end.Add(time.Millisecond), model.DropStatusEnded},
		{"sold out wins over end", model.Drop{StartTime: epoch, EndTime: &end, Allocations: alloc(0, 0)}, end.Add(time.Hour), model.DropStatusSoldOut},
		{"sold out before start", model.Drop{StartTime: epoch, Allocations: alloc(0)}, epoch.Add(-time.Hour), model.DropStatusSoldOut},
		{"one product left", model.Drop{StartTime: epoch, Allocations: alloc(0, 1)}, epoch, model.DropStatusLive},
		{"no allocations is never sold out", model.Drop{StartTime: epoch}, epoch, model.DropStatusLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.drop
			assert.Equal(t, tt.want, DeriveStatus(&d, tt.now))
		})
	}
}

func TestRefreshStatusWritesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeStandard, epoch.Add(time.Minute), map[string]int{"p-1": 1})

	got, err := h.drops.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DropStatusUpcoming, got.Status)
	assert.Equal(t, epoch, got.UpdatedAt)

	h.clock.Advance(time.Minute)
	got, err = h.drops.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DropStatusLive, got.Status)

	// a second refresh with a stale view is a no-op
	stale := *d
	require.NoError(t, refreshStatus(ctx, h.store, &stale, h.clock.Now()))
	assert.Equal(t, model.DropStatusLive, stale.Status)

	stored, err := h.store.GetDrop(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DropStatusLive, stored.Status)
}
