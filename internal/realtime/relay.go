package realtime

import (
	"context"
	"log/slog"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/redis"
)

type Relay interface {
	Publish(ctx context.Context, origin string, ev domain.Event) error
	Listen(ctx context.Context, handle func(redis.RelayMessage)) error
}

// RelayedPublisher publishes to local sessions and to peer replicas.
// Ordering across replicas is per-channel only; there is no global order.
type RelayedPublisher struct {
	local  *TopicPublisher
	relay  Relay
	origin string
	logger *slog.Logger
}

func NewRelayedPublisher(local *TopicPublisher, relay Relay, origin string, logger *slog.Logger) *RelayedPublisher {
	return &RelayedPublisher{local: local, relay: relay, origin: origin, logger: logger}
}

func (p *RelayedPublisher) Publish(ctx context.Context, ev domain.Event) {
	p.local.Publish(ctx, ev)
	if err := p.relay.Publish(ctx, p.origin, ev); err != nil {
		p.logger.Warn("relay publish failed",
			slog.String("event", string(ev.Kind)),
			slog.Any("error", err))
	}
}

// Run republishes peer events locally until ctx is done. Own events are skipped.
func (p *RelayedPublisher) Run(ctx context.Context) error {
	p.logger.Info("event relay STARTED", slog.String("origin", p.origin))
	defer p.logger.Info("event relay STOPPED")

	return p.relay.Listen(ctx, func(m redis.RelayMessage) {
		if m.Origin == p.origin {
			return
		}
		p.local.Publish(ctx, m.Event)
	})
}
