package service

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/clock"
	"github.com/iliyamo/limited-drops/internal/lock"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/observability"
	"github.com/iliyamo/limited-drops/internal/queue"
	"github.com/iliyamo/limited-drops/internal/repository"
)

const (
	// PurchaseWindow is how long a selected entrant has to buy.
	PurchaseWindow = 24 * time.Hour

	entryCodeAttempts = 3
)

// DrawSummary counts the entries decided by one selection pass.
type DrawSummary struct {
	Selected    int `json:"selected"`
	NotSelected int `json:"not_selected"`
}

// DrawResult is what a user sees about their entry in a drop.
// PurchaseDeadline is only set for selected entries.
type DrawResult struct {
	Entered          bool              `json:"entered"`
	Status           model.EntryStatus `json:"status"`
	Selected         bool              `json:"selected"`
	EntryCode        string            `json:"entry_code"`
	ProductID        string            `json:"product_id"`
	PurchaseDeadline *time.Time        `json:"purchase_deadline,omitempty"`
}

// DrawService collects draw entries and runs the selection passes that
// turn them into winners and losers.
type DrawService struct {
	drops   DropStore
	entries EntryStore
	locker  Locker
	events  EventPublisher
	clock   clock.Clock

	newCode func() (string, error)
}

func NewDrawService(drops DropStore, entries EntryStore, locker Locker, events EventPublisher, clk clock.Clock) *DrawService {
	return &DrawService{
		drops:   drops,
		entries: entries,
		locker:  locker,
		events:  events,
		clock:   clk,
		newCode: repository.NewEntryCode,
	}
}

// EnterDraw records a PENDING entry for userID. The drop must be a DRAW
// drop allocating productID. A second entry for the same product fails
// with a duplicate entry error; the store's unique index decides races.
func (s *DrawService) EnterDraw(ctx context.Context, userID, dropID, productID string, variantID *string) (*model.DrawEntry, error) {
	entry, err := s.enterDraw(ctx, userID, dropID, productID, variantID)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			observability.EntriesRejected.WithLabelValues(ae.Code).Inc()
		}
		return nil, err
	}
	observability.EntriesCreated.WithLabelValues().Inc()
	return entry, nil
}

func (s *DrawService) enterDraw(ctx context.Context, userID, dropID, productID string, variantID *string) (*model.DrawEntry, error) {
	if userID == "" || productID == "" {
		return nil, apperr.ErrValidation.Msg("user and product are required")
	}
	now := s.clock.Now()

	d, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dropNotFound(dropID)
		}
		return nil, translate(err)
	}
	if d.Type != model.DropTypeDraw {
		return nil, apperr.ErrInvalidDropType
	}
	if d.Allocation(productID) == nil {
		return nil, apperr.ErrValidation.Msg("product %s is not part of drop %s", productID, dropID)
	}

	entry := &model.DrawEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		DropID:    d.ID,
		ProductID: productID,
		VariantID: variantID,
		Status:    model.EntryStatusPending,
		CreatedAt: now,
	}
	err = retry.Do(
		func() error {
			code, err := s.newCode()
			if err != nil {
				return err
			}
			entry.EntryCode = code
			return s.entries.CreateEntry(ctx, entry)
		},
		retry.Context(ctx),
		retry.Attempts(entryCodeAttempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, repository.ErrEntryCodeTaken)
		}),
	)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, apperr.ErrDuplicateEntry
		}
		return nil, translate(err)
	}

	log.Info().
		Str("evt.name", "draw.enter").
		Str("drop_id", d.ID).
		Str("product_id", productID).
		Str("user_id", userID).
		Str("entry_id", entry.ID).
		Msg("draw entry created")
	return entry, nil
}

// RunDrawSelection decides every PENDING entry of a DRAW drop. For each
// allocation the pending pool is shuffled and the first remaining-quantity
// entries win. Each product commits atomically. Entries decided by an
// earlier pass are never touched, so re-running only handles new entries.
func (s *DrawService) RunDrawSelection(ctx context.Context, dropID string) (DrawSummary, error) {
	release, err := s.locker.Acquire(ctx, "draw:"+dropID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return DrawSummary{}, apperr.ErrInvalidState.Msg("selection already running for drop %s", dropID)
		}
		return DrawSummary{}, apperr.Storage(err)
	}
	defer release()

	started := time.Now()
	now := s.clock.Now()

	d, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return DrawSummary{}, dropNotFound(dropID)
		}
		return DrawSummary{}, translate(err)
	}
	if d.Type != model.DropTypeDraw {
		return DrawSummary{}, apperr.ErrInvalidDropType
	}

	rng, err := newRand()
	if err != nil {
		return DrawSummary{}, apperr.Storage(err)
	}

	var sum DrawSummary
	for _, a := range d.Allocations {
		pending, err := s.entries.ListPendingEntries(ctx, d.ID, a.ProductID)
		if err != nil {
			return sum, translate(err)
		}
		if len(pending) == 0 {
			continue
		}

		shuffle(rng, pending)
		k := min(a.RemainingQuantity, len(pending))
		ids := lo.Map(pending, func(e model.DrawEntry, _ int) string { return e.ID })

		if err := s.entries.CommitSelection(ctx, repository.SelectionCommit{
			DropID:       d.ID,
			ProductID:    a.ProductID,
			AllocationID: a.ID,
			Winners:      ids[:k],
			Losers:       ids[k:],
			SelectedAt:   now,
		}); err != nil {
			log.Error().Err(err).
				Str("evt.name", "draw.select").
				Str("drop_id", d.ID).
				Str("product_id", a.ProductID).
				Msg("selection commit failed")
			return sum, translate(err)
		}
		sum.Selected += k
		sum.NotSelected += len(ids) - k
	}

	if err := s.drops.MarkDrawCompleted(ctx, d.ID, now); err != nil {
		return sum, translate(err)
	}

	// reload so the status sees the decremented allocations
	if fresh, err := s.drops.GetDrop(ctx, d.ID); err != nil {
		log.Warn().Err(err).Str("evt.name", "draw.select").Str("drop_id", d.ID).Msg("reload after selection failed")
	} else if err := refreshStatus(ctx, s.drops, fresh, now); err != nil {
		log.Warn().Err(err).Str("evt.name", "draw.select").Str("drop_id", d.ID).Msg("status refresh after selection failed")
	}

	observability.DrawOutcomes.WithLabelValues("selected").Add(float64(sum.Selected))
	observability.DrawOutcomes.WithLabelValues("not_selected").Add(float64(sum.NotSelected))
	observability.DrawDuration.WithLabelValues().Observe(time.Since(started).Seconds())

	if err := s.events.PublishDrawCompleted(ctx, queue.DrawCompletedEvent{
		DropID:      d.ID,
		DropName:    d.Name,
		Selected:    sum.Selected,
		NotSelected: sum.NotSelected,
		CompletedAt: now.Format(time.RFC3339),
	}); err != nil {
		log.Warn().Err(err).Str("evt.name", "draw.select").Str("drop_id", d.ID).Msg("publish draw completed failed")
	}

	log.Info().
		Str("evt.name", "draw.select").
		Str("drop_id", d.ID).
		Int("selected", sum.Selected).
		Int("not_selected", sum.NotSelected).
		Msg("selection pass completed")
	return sum, nil
}

// GetDrawResult reports the user's most recent entry in the drop. It
// returns nil without error when the user never entered.
func (s *DrawService) GetDrawResult(ctx context.Context, userID, dropID string) (*DrawResult, error) {
	e, err := s.entries.LatestEntryForDrop(ctx, userID, dropID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, translate(err)
	}
	res := &DrawResult{
		Entered:   true,
		Status:    e.Status,
		Selected:  e.Status == model.EntryStatusSelected,
		EntryCode: e.EntryCode,
		ProductID: e.ProductID,
	}
	if res.Selected && e.SelectedAt != nil {
		deadline := e.SelectedAt.Add(PurchaseWindow)
		res.PurchaseDeadline = &deadline
	}
	return res, nil
}

// ListUserEntries returns the user's entries, newest first.
func (s *DrawService) ListUserEntries(ctx context.Context, userID string) ([]model.DrawEntry, error) {
	entries, err := s.entries.ListUserEntries(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

// MarkPurchased moves a SELECTED entry to PURCHASED. It is called by the
// order system and only succeeds inside the purchase window.
func (s *DrawService) MarkPurchased(ctx context.Context, userID, dropID, productID string) (*model.DrawEntry, error) {
	now := s.clock.Now()
	e, err := s.entries.GetEntry(ctx, userID, dropID, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrNotFound.Msg("no entry for product %s in drop %s", productID, dropID)
		}
		return nil, translate(err)
	}
	if e.Status != model.EntryStatusSelected || e.SelectedAt == nil {
		return nil, apperr.ErrInvalidState.Msg("entry is %s, not SELECTED", e.Status)
	}
	if now.After(e.SelectedAt.Add(PurchaseWindow)) {
		return nil, apperr.ErrInvalidState.Msg("purchase window has expired")
	}
	if err := s.entries.UpdateEntryStatus(ctx, e.ID, model.EntryStatusSelected, model.EntryStatusPurchased); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.ErrInvalidState.Msg("entry already purchased")
		}
		return nil, translate(err)
	}
	e.Status = model.EntryStatusPurchased
	log.Info().
		Str("evt.name", "draw.purchase").
		Str("drop_id", dropID).
		Str("entry_id", e.ID).
		Msg("selected entry purchased")
	return e, nil
}
