package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/limited-drops/internal/apperr"
	"github.com/iliyamo/limited-drops/internal/model"
	"github.com/iliyamo/limited-drops/internal/queue"
)

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeStandard, epoch.Add(time.Hour), map[string]int{"p-1": 1})

	require.NoError(t, h.notify.SubscribeNotification(ctx, "u-1", d.ID))
	require.NoError(t, h.notify.SubscribeNotification(ctx, "u-1", d.ID))
	ok, err := h.notify.IsSubscribed(ctx, "u-1", d.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.notify.UnsubscribeNotification(ctx, "u-1", d.ID))
	ok, err = h.notify.IsSubscribed(ctx, "u-1", d.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, h.notify.SubscribeNotification(ctx, "u-1", "missing"), apperr.ErrNotFound)
}

func TestDispatchLiveNotifications(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeStandard, epoch.Add(time.Hour), map[string]int{"p-1": 1})

	h.store.AddUser(model.Subscriber{UserID: "u-1", Email: "ada@example.com", FirstName: "Ada"})
	h.store.AddUser(model.Subscriber{UserID: "u-2", Email: "bob@example.com", FirstName: "Bob"})
	require.NoError(t, h.notify.SubscribeNotification(ctx, "u-1", d.ID))
	h.clock.Advance(time.Second)
	require.NoError(t, h.notify.SubscribeNotification(ctx, "u-2", d.ID))

	_, err := h.notify.DispatchLiveNotifications(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	subs, err := h.notify.ListUnnotifiedSubscribers(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	h.clock.Advance(time.Hour)
	n, err := h.notify.DispatchLiveNotifications(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, h.events.live, 2)
	assert.Equal(t, "ada@example.com", h.events.live[0].Email)
	assert.Equal(t, d.ID, h.events.live[1].DropID)

	subs, err = h.notify.ListUnnotifiedSubscribers(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	n, err = h.notify.DispatchLiveNotifications(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchLiveNotificationsKeepsSubscribersOnPublishFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeStandard, epoch, map[string]int{"p-1": 1})
	h.store.AddUser(model.Subscriber{UserID: "u-1", Email: "ada@example.com"})
	require.NoError(t, h.notify.SubscribeNotification(ctx, "u-1", d.ID))

	h.events.err = errors.New("broker down")
	_, err := h.notify.DispatchLiveNotifications(ctx, d.ID)
	assert.ErrorIs(t, err, apperr.ErrStorage)

	subs, err := h.notify.ListUnnotifiedSubscribers(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestDispatchLiveNotificationsWithoutBroker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	notify := NewNotificationService(h.store, h.store, queue.LogPublisher{}, h.clock)
	d := h.createDrop(t, model.DropTypeStandard, epoch, map[string]int{"p-1": 1})
	h.store.AddUser(model.Subscriber{UserID: "u-1", Email: "ada@example.com"})
	require.NoError(t, notify.SubscribeNotification(ctx, "u-1", d.ID))

	n, err := notify.DispatchLiveNotifications(ctx, d.ID)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.ErrorIs(t, err, queue.ErrBrokerDisabled)

	subs, err := notify.ListUnnotifiedSubscribers(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestMarkNotified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.createDrop(t, model.DropTypeStandard, epoch, map[string]int{"p-1": 1})
	h.store.AddUser(model.Subscriber{UserID: "u-1"})
	require.NoError(t, h.notify.SubscribeNotification(ctx, "u-1", d.ID))

	n, err := h.notify.MarkNotified(ctx, d.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = h.notify.MarkNotified(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
