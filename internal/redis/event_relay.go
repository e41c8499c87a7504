package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"hyperlocal/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// RelayMessage is what travels over the pub/sub channel between replicas.
type RelayMessage struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

type EventRelay struct {
	client  *goredis.Client
	channel string
	logger  *slog.Logger
}

func NewEventRelay(r *Redis, channel string, logger *slog.Logger) *EventRelay {
	return &EventRelay{client: r.Client, channel: channel, logger: logger}
}

func (r *EventRelay) Publish(ctx context.Context, origin string, ev domain.Event) error {
	b, err := json.Marshal(RelayMessage{Origin: origin, Event: ev})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Listen delivers every message published on the channel until ctx is done.
// Undecodable messages are logged and skipped.
func (r *EventRelay) Listen(ctx context.Context, handle func(RelayMessage)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m RelayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("dropping undecodable relay message", slog.Any("error", err))
				continue
			}
			handle(m)
		}
	}
}
