// Package queue defines message payloads exchanged over the message broker
// together with the RabbitMQ publisher and consumer that carry them.
package queue

const (
	// DropLiveQueue carries one message per subscriber when a drop goes live.
	DropLiveQueue = "drop.live"
	// DrawCompletedQueue carries one message per finished selection pass.
	DrawCompletedQueue = "draw.completed"
)

// DropLiveEvent asks the external sender to tell one subscriber that a
// drop is live. It carries everything the sender needs so that it never
// queries the engine's database.
type DropLiveEvent struct {
	DropID    string `json:"drop_id"`
	DropName  string `json:"drop_name"`
	HeroImage string `json:"hero_image"`
	StartTime string `json:"start_time"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	QueuedAt  string `json:"queued_at"`
}

// DrawCompletedEvent is published after a selection pass commits.
type DrawCompletedEvent struct {
	DropID      string `json:"drop_id"`
	DropName    string `json:"drop_name"`
	Selected    int    `json:"selected"`
	NotSelected int    `json:"not_selected"`
	CompletedAt string `json:"completed_at"`
}
