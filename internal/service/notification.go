package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/clock"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/observability"
	"github.com/iliyamo/limited-drops/internal/queue"
	"github.com/iliyamo/limited-drops/internal/repository"
)

// NotificationService manages go-live opt-ins and hands the contact list
// of a live drop to the message broker. Delivery itself happens elsewhere.
type NotificationService struct {
	drops  DropStore
	subs   SubscriptionStore
	events EventPublisher
	clock  clock.Clock
}

func NewNotificationService(drops DropStore, subs SubscriptionStore, events EventPublisher, clk clock.Clock) *NotificationService {
	return &NotificationService{drops: drops, subs: subs, events: events, clock: clk}
}

// SubscribeNotification opts userID in. Repeated calls are no-ops.
func (s *NotificationService) SubscribeNotification(ctx context.Context, userID, dropID string) error {
	if _, err := s.getDrop(ctx, dropID); err != nil {
		return err
	}
	return translate(s.subs.Subscribe(ctx, userID, dropID, s.clock.Now()))
}

// UnsubscribeNotification removes the opt-in if present.
func (s *NotificationService) UnsubscribeNotification(ctx context.Context, userID, dropID string) error {
	return translate(s.subs.Unsubscribe(ctx, userID, dropID))
}

// IsSubscribed reports whether userID is opted in to dropID.
func (s *NotificationService) IsSubscribed(ctx context.Context, userID, dropID string) (bool, error) {
	ok, err := s.subs.IsSubscribed(ctx, userID, dropID)
	return ok, translate(err)
}

// ListUnnotifiedSubscribers returns the contacts still waiting for the
// go-live notification of dropID.
func (s *NotificationService) ListUnnotifiedSubscribers(ctx context.Context, dropID string) ([]model.Subscriber, error) {
	subs, err := s.subs.ListUnnotifiedSubscribers(ctx, dropID)
	if err != nil {
		return nil, translate(err)
	}
	return subs, nil
}

// MarkNotified flags the drop's pending subscriptions as notified.
func (s *NotificationService) MarkNotified(ctx context.Context, dropID string) (int64, error) {
	n, err := s.subs.MarkNotified(ctx, dropID, s.clock.Now())
	return n, translate(err)
}

// DispatchLiveNotifications publishes one drop.live event per unnotified
// subscriber of a LIVE drop and then marks them notified. Nothing is
// marked when publishing fails, so the next dispatch retries.
func (s *NotificationService) DispatchLiveNotifications(ctx context.Context, dropID string) (int, error) {
	now := s.clock.Now()
	d, err := s.getDrop(ctx, dropID)
	if err != nil {
		return 0, err
	}
	if err := refreshStatus(ctx, s.drops, d, now); err != nil {
		return 0, err
	}
	if d.Status != model.DropStatusLive {
		return 0, apperr.ErrInvalidState.Msg("drop %s is %s, not LIVE", d.ID, d.Status)
	}

	subs, err := s.ListUnnotifiedSubscribers(ctx, d.ID)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	queuedAt := now.Format(time.RFC3339)
	events := lo.Map(subs, func(sub model.Subscriber, _ int) queue.DropLiveEvent {
		return queue.DropLiveEvent{
			DropID:    d.ID,
			DropName:  d.Name,
			HeroImage: d.HeroImage,
			StartTime: d.StartTime.Format(time.RFC3339),
			UserID:    sub.UserID,
			Email:     sub.Email,
			FirstName: sub.FirstName,
			QueuedAt:  queuedAt,
		}
	})
	if err := s.events.PublishDropLive(ctx, events); err != nil {
		return 0, apperr.Storage(errors.Wrap(err, "publish drop live"))
	}
	if _, err := s.subs.MarkNotified(ctx, d.ID, now); err != nil {
		return 0, translate(err)
	}

	observability.NotificationsQueued.WithLabelValues().Add(float64(len(events)))
	log.Info().
		Str("evt.name", "notify.dispatch").
		Str("drop_id", d.ID).
		Int("subscribers", len(events)).
		Msg("drop live notifications queued")
	return len(events), nil
}

func (s *NotificationService) getDrop(ctx context.Context, dropID string) (*model.Drop, error) {
	d, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dropNotFound(dropID)
		}
		return nil, translate(err)
	}
	return d, nil
}
