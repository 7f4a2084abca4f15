package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/limited-drops/internal/model"
)

// SubscriptionRepo stores drop go-live notification opt-ins.
type SubscriptionRepo struct {
	db *sql.DB
}

// NewSubscriptionRepo returns a new SubscriptionRepo bound to db.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// Subscribe opts the user in. Subscribing twice keeps the original row.
func (r *SubscriptionRepo) Subscribe(ctx context.Context, userID, dropID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO drop_notification_subscriptions (user_id, drop_id, notified, created_at)
		 VALUES (?, ?, FALSE, ?)`, userID, dropID, at.UTC())
	return errors.Wrap(err, "insert subscription")
}

// Unsubscribe removes the subscription row if present.
func (r *SubscriptionRepo) Unsubscribe(ctx context.Context, userID, dropID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM drop_notification_subscriptions WHERE user_id = ? AND drop_id = ?`, userID, dropID)
	return errors.Wrap(err, "delete subscription")
}

// IsSubscribed reports whether the user is subscribed to the drop.
func (r *SubscriptionRepo) IsSubscribed(ctx context.Context, userID, dropID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM drop_notification_subscriptions WHERE user_id = ? AND drop_id = ?`,
		userID, dropID).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "count subscription")
	}
	return n > 0, nil
}

// ListUnnotifiedSubscribers joins unnotified subscriptions with the users
// table to produce the contact list for the external sender.
func (r *SubscriptionRepo) ListUnnotifiedSubscribers(ctx context.Context, dropID string) ([]model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.user_id, u.email, COALESCE(u.first_name, '')
		 FROM drop_notification_subscriptions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.drop_id = ? AND s.notified = FALSE
		 ORDER BY s.created_at`, dropID)
	if err != nil {
		return nil, errors.Wrap(err, "list subscribers")
	}
	defer rows.Close()

	out := []model.Subscriber{}
	for rows.Next() {
		var s model.Subscriber
		if err := rows.Scan(&s.UserID, &s.Email, &s.FirstName); err != nil {
			return nil, errors.Wrap(err, "scan subscriber")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate subscribers")
	}
	return out, nil
}

// MarkNotified flags every unnotified subscription of the drop and returns
// how many rows changed.
func (r *SubscriptionRepo) MarkNotified(ctx context.Context, dropID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE drop_notification_subscriptions SET notified = TRUE, notified_at = ?
		 WHERE drop_id = ? AND notified = FALSE`, at.UTC(), dropID)
	if err != nil {
		return 0, errors.Wrap(err, "mark notified")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "mark notified")
	}
	return n, nil
}
