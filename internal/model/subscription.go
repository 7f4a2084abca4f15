package model

import "time"

// DropNotificationSubscription records a user's opt-in to hear when a
// drop goes live. Unique per (user, drop).
type DropNotificationSubscription struct {
	UserID     string     `json:"user_id"`
	DropID     string     `json:"drop_id"`
	Notified   bool       `json:"notified"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Subscriber is the contact data handed to the external notification
// sender for an unnotified subscription.
type Subscriber struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}
