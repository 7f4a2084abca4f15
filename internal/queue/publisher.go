package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// ErrBrokerDisabled is returned by LogPublisher for events that must reach
// an external sender. Callers keep their state so a later dispatch through
// a real broker still delivers.
var ErrBrokerDisabled = errors.New("message broker not configured")

// Publisher publishes events to RabbitMQ. Each call dials, declares the
// durable queue and publishes persistent messages on the default exchange.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// PublishDropLive publishes one message per subscriber on DropLiveQueue.
func (p *Publisher) PublishDropLive(ctx context.Context, events []DropLiveEvent) error {
	bodies := make([]any, 0, len(events))
	for _, ev := range events {
		bodies = append(bodies, ev)
	}
	return p.publish(ctx, DropLiveQueue, bodies)
}

// PublishDrawCompleted publishes a DrawCompletedEvent on DrawCompletedQueue.
func (p *Publisher) PublishDrawCompleted(ctx context.Context, event DrawCompletedEvent) error {
	return p.publish(ctx, DrawCompletedQueue, []any{event})
}

func (p *Publisher) publish(ctx context.Context, queueName string, events []any) error {
	if len(events) == 0 {
		return nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Error().Err(err).Str("evt.name", "queue.publish").Msg("rabbitmq: dial failed")
		return errors.Wrap(err, "dial broker")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Str("evt.name", "queue.publish").Msg("rabbitmq: channel open failed")
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Error().Err(err).Str("evt.name", "queue.publish").Str("queue", queueName).Msg("rabbitmq: queue declare failed")
		return errors.Wrap(err, "queue declare")
	}

	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "marshal event")
		}
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		}
		if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
			log.Error().Err(err).Str("evt.name", "queue.publish").Str("queue", queueName).Msg("rabbitmq: publish failed")
			return errors.Wrap(err, "publish")
		}
	}
	return nil
}

// LogPublisher stands in for Publisher when no broker is configured. Drop
// live notifications are refused with ErrBrokerDisabled; draw completion
// events are informational and only logged.
type LogPublisher struct{}

func (LogPublisher) PublishDropLive(ctx context.Context, events []DropLiveEvent) error {
	for _, ev := range events {
		log.Info().
			Str("evt.name", "queue.drop_live").
			Str("drop_id", ev.DropID).
			Str("user_id", ev.UserID).
			Msg("broker disabled, drop live notification not published")
	}
	return ErrBrokerDisabled
}

func (LogPublisher) PublishDrawCompleted(ctx context.Context, event DrawCompletedEvent) error {
	log.Info().
		Str("evt.name", "queue.draw_completed").
		Str("drop_id", event.DropID).
		Int("selected", event.Selected).
		Int("not_selected", event.NotSelected).
		Msg("broker disabled, draw completed event not published")
	return nil
}
