package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/clock"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/repository"
)

const (
	DefaultCalendarDays = 30
	MaxCalendarDays     = 365
)

// ListDropsFilter narrows ListDrops. UpcomingOnly keeps drops whose start
// time is still ahead.
type ListDropsFilter struct {
	Status       *model.DropStatus
	Type         *model.DropType
	UpcomingOnly bool
	Limit        int
}

// DropService serves the drop catalog: creation, listing, the release
// calendar, access decisions, countdowns and direct purchases.
type DropService struct {
	drops    DropStore
	members  MembershipLookup
	clock    clock.Clock
	validate *validator.Validate
}

func NewDropService(drops DropStore, members MembershipLookup, clk clock.Clock) *DropService {
	return &DropService{
		drops:    drops,
		members:  members,
		clock:    clk,
		validate: newValidator(),
	}
}

// CreateDrop validates in and stores a new UPCOMING drop with one
// allocation per product.
func (s *DropService) CreateDrop(ctx context.Context, in CreateDropInput) (*model.Drop, error) {
	if err := validateCreateDrop(s.validate, &in); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	d := &model.Drop{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Description:       in.Description,
		Type:              in.Type,
		Status:            model.DropStatusUpcoming,
		StartTime:         in.StartTime.UTC(),
		EndTime:           utcPtr(in.EndTime),
		EarlyAccessStart:  utcPtr(in.EarlyAccessStart),
		MemberOnly:        in.MemberOnly,
		NotifySubscribers: in.NotifySubscribers,
		HeroImage:         in.HeroImage,
		TeaserText:        in.TeaserText,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	d.Allocations = lo.Map(in.Allocations, func(a AllocationInput, _ int) model.DropAllocation {
		return model.DropAllocation{
			ID:                uuid.NewString(),
			DropID:            d.ID,
			ProductID:         a.ProductID,
			AllocatedQuantity: a.Quantity,
			RemainingQuantity: a.Quantity,
			MaxPerCustomer:    lo.Ternary(a.MaxPerCustomer > 0, a.MaxPerCustomer, 1),
		}
	})

	if err := s.drops.CreateDrop(ctx, d); err != nil {
		return nil, translate(err)
	}
	log.Info().
		Str("evt.name", "drop.create").
		Str("drop_id", d.ID).
		Str("type", string(d.Type)).
		Time("start_time", d.StartTime).
		Int("allocations", len(d.Allocations)).
		Msg("drop created")
	return d, nil
}

// GetDrop returns the drop with its status brought up to date.
func (s *DropService) GetDrop(ctx context.Context, id string) (*model.Drop, error) {
	now := s.clock.Now()
	return s.loadFresh(ctx, id, now)
}

// ListDrops returns drops ordered by start time. A status filter is
// matched against the derived status: the store is asked for every stored
// status that can still derive to it, and the refreshed result is filtered.
func (s *DropService) ListDrops(ctx context.Context, f ListDropsFilter) ([]model.Drop, error) {
	now := s.clock.Now()
	rf := repository.DropFilter{
		Type:  f.Type,
		Limit: f.Limit,
	}
	if f.Status != nil {
		rf.Statuses = sourceStatuses(*f.Status)
		rf.Limit = repository.MaxListLimit
	}
	if f.UpcomingOnly {
		rf.StartFrom = &now
	}
	drops, err := s.drops.ListDrops(ctx, rf)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.refreshAll(ctx, drops, now); err != nil {
		return nil, err
	}
	if f.Status != nil {
		drops = lo.Filter(drops, func(d model.Drop, _ int) bool { return d.Status == *f.Status })
		if limit := (repository.DropFilter{Limit: f.Limit}).EffectiveLimit(); len(drops) > limit {
			drops = drops[:limit]
		}
	}
	return drops, nil
}

// sourceStatuses lists the stored statuses that can derive to target.
// Time only moves forward and remaining quantities only shrink, so a drop
// never derives to an earlier lifecycle state.
func sourceStatuses(target model.DropStatus) []model.DropStatus {
	switch target {
	case model.DropStatusUpcoming:
		return []model.DropStatus{model.DropStatusUpcoming}
	case model.DropStatusLive:
		return []model.DropStatus{model.DropStatusUpcoming, model.DropStatusLive}
	case model.DropStatusEnded:
		return []model.DropStatus{model.DropStatusUpcoming, model.DropStatusLive, model.DropStatusEnded}
	}
	return []model.DropStatus{model.DropStatusUpcoming, model.DropStatusLive, model.DropStatusEnded, model.DropStatusSoldOut}
}

// GetCalendar returns drops starting within [now, now+daysAhead days].
func (s *DropService) GetCalendar(ctx context.Context, daysAhead int) ([]model.Drop, error) {
	if daysAhead <= 0 || daysAhead > MaxCalendarDays {
		return nil, apperr.ErrValidation.Msg("days must be between 1 and %d", MaxCalendarDays)
	}
	now := s.clock.Now()
	until := now.Add(time.Duration(daysAhead) * 24 * time.Hour)
	drops, err := s.drops.ListDrops(ctx, repository.DropFilter{
		StartFrom: &now,
		StartTo:   &until,
		Limit:     repository.MaxListLimit,
	})
	if err != nil {
		return nil, translate(err)
	}
	if err := s.refreshAll(ctx, drops, now); err != nil {
		return nil, err
	}
	return drops, nil
}

// EvaluateAccess loads the drop and decides whether userID may act on it
// now. An empty userID is treated as an anonymous non-member and skips the
// membership lookup.
func (s *DropService) EvaluateAccess(ctx context.Context, dropID, userID string) (AccessResult, error) {
	now := s.clock.Now()
	d, err := s.loadFresh(ctx, dropID, now)
	if err != nil {
		return AccessResult{}, err
	}
	isMember := false
	if userID != "" {
		if isMember, err = s.members.HasActiveMembership(ctx, userID); err != nil {
			return AccessResult{}, apperr.Storage(err)
		}
	}
	return EvaluateAccess(d, now, isMember), nil
}

// Countdown returns the time left until the drop opens.
func (s *DropService) Countdown(ctx context.Context, dropID string) (CountdownResult, error) {
	now := s.clock.Now()
	d, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CountdownResult{}, dropNotFound(dropID)
		}
		return CountdownResult{}, translate(err)
	}
	return Countdown(d.StartTime, now), nil
}

// CommitPurchase takes quantity units of productID from a non-draw drop on
// behalf of the order system. Draw drops sell through their selected
// entries instead, see DrawService.MarkPurchased.
func (s *DropService) CommitPurchase(ctx context.Context, dropID, productID string, quantity int) (*model.DropAllocation, error) {
	now := s.clock.Now()
	d, err := s.loadFresh(ctx, dropID, now)
	if err != nil {
		return nil, err
	}
	if d.Type == model.DropTypeDraw {
		return nil, apperr.ErrValidation.Msg("draw drops are purchased through selected entries")
	}
	a := d.Allocation(productID)
	if a == nil {
		return nil, apperr.ErrNotFound.Msg("product %s is not part of drop %s", productID, dropID)
	}
	if quantity < 1 || quantity > a.MaxPerCustomer {
		return nil, apperr.ErrValidation.Msg("quantity must be between 1 and %d", a.MaxPerCustomer)
	}
	switch d.Status {
	case model.DropStatusUpcoming:
		return nil, apperr.ErrInvalidState.Msg("drop has not started")
	case model.DropStatusEnded:
		return nil, apperr.ErrInvalidState.Msg("drop has ended")
	case model.DropStatusSoldOut:
		return nil, apperr.ErrInvalidState.Msg("sold out")
	}

	if err := s.drops.DecrementRemaining(ctx, a.ID, quantity); err != nil {
		if errors.Is(err, repository.ErrInsufficientInventory) {
			return nil, apperr.ErrInvalidState.Msg("sold out")
		}
		return nil, translate(err)
	}
	a.RemainingQuantity -= quantity
	// best effort: the sweeper catches the SOLD_OUT transition otherwise
	if err := refreshStatus(ctx, s.drops, d, now); err != nil {
		log.Warn().Err(err).Str("evt.name", "drop.purchase").Str("drop_id", d.ID).Msg("status refresh after purchase failed")
	}
	log.Info().
		Str("evt.name", "drop.purchase").
		Str("drop_id", d.ID).
		Str("product_id", productID).
		Int("quantity", quantity).
		Int("remaining", a.RemainingQuantity).
		Msg("purchase committed")
	return a, nil
}

// RefreshStatuses refreshes every drop that is not yet closed and returns
// them with their current status.
func (s *DropService) RefreshStatuses(ctx context.Context) ([]model.Drop, error) {
	now := s.clock.Now()
	drops, err := s.drops.ListDrops(ctx, repository.DropFilter{
		Statuses: []model.DropStatus{model.DropStatusUpcoming, model.DropStatusLive},
		Limit:    repository.MaxListLimit,
	})
	if err != nil {
		return nil, translate(err)
	}
	if err := s.refreshAll(ctx, drops, now); err != nil {
		return nil, err
	}
	return drops, nil
}

// PendingDraws returns DRAW drops that have ended without a selection
// pass.
func (s *DropService) PendingDraws(ctx context.Context) ([]model.Drop, error) {
	typ := model.DropTypeDraw
	drops, err := s.drops.ListDrops(ctx, repository.DropFilter{
		Statuses: []model.DropStatus{model.DropStatusEnded},
		Type:     &typ,
		Limit:    repository.MaxListLimit,
	})
	if err != nil {
		return nil, translate(err)
	}
	return lo.Filter(drops, func(d model.Drop, _ int) bool { return !d.DrawCompleted }), nil
}

func (s *DropService) loadFresh(ctx context.Context, id string, now time.Time) (*model.Drop, error) {
	d, err := s.drops.GetDrop(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dropNotFound(id)
		}
		return nil, translate(err)
	}
	if err := refreshStatus(ctx, s.drops, d, now); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DropService) refreshAll(ctx context.Context, drops []model.Drop, now time.Time) error {
	for i := range drops {
		if err := refreshStatus(ctx, s.drops, &drops[i], now); err != nil {
			return err
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
