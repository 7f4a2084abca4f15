package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/observability"
)

// DeriveStatus computes the lifecycle status of d at now. Sell-out is
// checked first and wins over an elapsed end time.
func DeriveStatus(d *model.Drop, now time.Time) model.DropStatus {
	soldOut := len(d.Allocations) > 0 && lo.EveryBy(d.Allocations, func(a model.DropAllocation) bool {
		return a.RemainingQuantity == 0
	})
	switch {
	case soldOut:
		return model.DropStatusSoldOut
	case d.EndTime != nil && now.After(*d.EndTime):
		return model.DropStatusEnded
	case !now.Before(d.StartTime):
		return model.DropStatusLive
	}
	return model.DropStatusUpcoming
}

// refreshStatus persists DeriveStatus(d, now) when it differs from the
// stored status and updates d in place. The write is conditional on the
// previous value, so concurrent refreshes of the same drop are harmless.
func refreshStatus(ctx context.Context, drops DropStore, d *model.Drop, now time.Time) error {
	next := DeriveStatus(d, now)
	if next == d.Status {
		return nil
	}
	changed, err := drops.UpdateStatus(ctx, d.ID, d.Status, next, now)
	if err != nil {
		return translate(err)
	}
	if changed {
		observability.StatusTransitions.WithLabelValues(string(d.Status), string(next)).Inc()
		log.Info().
			Str("evt.name", "drop.status").
			Str("drop_id", d.ID).
			Str("from", string(d.Status)).
			Str("to", string(next)).
			Msg("drop status changed")
		d.UpdatedAt = now
	}
	d.Status = next
	return nil
}
