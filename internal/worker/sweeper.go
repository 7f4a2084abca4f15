// Package worker runs the periodic drop sweeper. Each pass persists status
// transitions, queues go-live notifications for LIVE drops that asked for
// them and, when enabled, runs selection for DRAW drops that have ended.
package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/observability"
	"github.com/iliyamo/limited-drops/internal/queue"
	"github.com/iliyamo/limited-drops/internal/service"
)

type Deps struct {
	Drops  *service.DropService
	Draws  *service.DrawService
	Notify *service.NotificationService
}

// PassResult counts what one sweep did.
type PassResult struct {
	Refreshed int
	Notified  int
	Drawn     int
}

type Sweeper struct {
	// interval between passes
	interval time.Duration

	// autoDraw enables selection for ended DRAW drops
	autoDraw bool

	// count of passes completed so far
	count int

	Deps
}

func NewSweeper(interval time.Duration, autoDraw bool, deps Deps) *Sweeper {
	return &Sweeper{interval: interval, autoDraw: autoDraw, Deps: deps}
}

// Start runs passes until ctx is cancelled. A zero interval disables the
// sweeper. The returned channel closes once the loop has exited.
func (w *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if w.interval <= 0 {
		log.Info().Str("evt.name", "worker.disabled").Msg("sweeper disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		t := time.NewTicker(w.interval)
		defer t.Stop()
		for {
			w.RunOnce(ctx)
			select {
			case <-ctx.Done():
				log.Info().Int("count", w.count).Str("evt.name", "worker.stopped").Msg("sweeper stopped")
				return
			case <-t.C:
			}
		}
	}()
	return done
}

// RunOnce performs a single pass. Failures for one drop are logged and do
// not stop the rest of the pass.
func (w *Sweeper) RunOnce(ctx context.Context) PassResult {
	started := time.Now()
	var res PassResult

	drops, err := w.Drops.RefreshStatuses(ctx)
	if err != nil {
		log.Error().Err(err).Str("evt.name", "worker.sweep").Msg("status refresh failed")
		return res
	}
	res.Refreshed = len(drops)

	for _, d := range drops {
		if d.Status != model.DropStatusLive || !d.NotifySubscribers {
			continue
		}
		n, err := w.Notify.DispatchLiveNotifications(ctx, d.ID)
		if errors.Is(err, queue.ErrBrokerDisabled) {
			log.Debug().Str("evt.name", "worker.notify").Str("drop_id", d.ID).Msg("no broker, subscribers left pending")
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("evt.name", "worker.notify").Str("drop_id", d.ID).Msg("notification dispatch failed")
			continue
		}
		res.Notified += n
	}

	if w.autoDraw {
		res.Drawn = w.runPendingDraws(ctx)
	}

	w.count++
	observability.SweepDuration.WithLabelValues().Set(time.Since(started).Seconds())
	log.Debug().
		Str("evt.name", "worker.sweep").
		Int("count", w.count).
		Int("refreshed", res.Refreshed).
		Int("notified", res.Notified).
		Int("drawn", res.Drawn).
		Msg("sweep finished")
	return res
}

func (w *Sweeper) runPendingDraws(ctx context.Context) int {
	pending, err := w.Drops.PendingDraws(ctx)
	if err != nil {
		log.Error().Err(err).Str("evt.name", "worker.draw").Msg("listing pending draws failed")
		return 0
	}
	drawn := 0
	for _, d := range pending {
		if _, err := w.Draws.RunDrawSelection(ctx, d.ID); err != nil {
			// a 4xx means the drop cannot be drawn right now, e.g. locked elsewhere
			if apperr.StatusOf(err) < 500 {
				log.Debug().Err(err).Str("evt.name", "worker.draw").Str("drop_id", d.ID).Msg("selection skipped")
				continue
			}
			log.Error().Err(err).Str("evt.name", "worker.draw").Str("drop_id", d.ID).Msg("selection failed")
			continue
		}
		drawn++
	}
	return drawn
}

func (w *Sweeper) Count() int {
	return w.count
}
