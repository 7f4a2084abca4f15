package queue

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler processes one message body. Returning an error rejects the
// message without requeueing it.
type Handler func(body []byte) error

// StartConsumer connects to RabbitMQ, declares queueName (durable) and feeds
// every delivery to handle. It reconnects with exponential backoff and
// returns only when ctx is cancelled.
func StartConsumer(ctx context.Context, url, queueName string, handle Handler) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Str("evt.name", "queue.consumer").Dur("backoff", backoff).Msg("failed to dial broker, retrying")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queueName, handle)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("evt.name", "queue.consumer").Str("queue", queueName).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, handle Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Str("evt.name", "queue.consumer").Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "queue declare")
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue consume")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(d.Body); err != nil {
				log.Error().Err(err).Str("evt.name", "queue.consumer").Str("queue", queueName).Msg("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// NotificationLogHandler returns a Handler that appends one structured line
// per DropLiveEvent to w. It is the default sink when no real sender is
// attached to the drop.live queue.
func NotificationLogHandler(w io.Writer) Handler {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return func(body []byte) error {
		var ev DropLiveEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal")
		}
		if ev.DropID == "" || ev.UserID == "" {
			return errors.New("drop live event missing drop_id or user_id")
		}
		logger.Info().
			Str("drop_id", ev.DropID).
			Str("drop", ev.DropName).
			Str("user_id", ev.UserID).
			Str("email", ev.Email).
			Str("first_name", ev.FirstName).
			Str("queued_at", ev.QueuedAt).
			Msg("drop live notification")
		return nil
	}
}
