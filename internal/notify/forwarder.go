// Package notify forwards incident events to an outbound webhook through a
// Redis-backed queue.
package notify

import (
	"context"
	"log/slog"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/realtime"

	"github.com/jonboulle/clockwork"
)

type Queue interface {
	Enqueue(ctx context.Context, payload domain.WebhookPayload) error
}

// Forwarder is a virtual hub session that copies every event onto the queue.
type Forwarder struct {
	hub    *realtime.Hub
	topic  string
	queue  Queue
	origin string
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewForwarder(hub *realtime.Hub, queue Queue, origin string, clock clockwork.Clock, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		hub:    hub,
		topic:  realtime.TopicIncidents,
		queue:  queue,
		origin: origin,
		clock:  clock,
		logger: logger,
	}
}

// Run blocks until ctx is done or the hub closes.
func (f *Forwarder) Run(ctx context.Context) error {
	const op = "notify.Forwarder.Run"

	session, err := f.hub.Subscribe(f.topic)
	if err != nil {
		f.logger.Error("subscribe failed", slog.String("op", op), slog.Any("error", err))
		return err
	}
	defer session.Close()

	f.logger.Info("webhook forwarder started", slog.String("topic", f.topic))

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("webhook forwarder stopped", slog.String("reason", ctx.Err().Error()))
			return nil
		case ev, ok := <-session.Events():
			if !ok {
				return nil
			}
			f.forward(ctx, ev)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, ev domain.Event) {
	const op = "notify.Forwarder.forward"

	enqueueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	payload := domain.WebhookPayload{
		Payload:    ev,
		Origin:     f.origin,
		EnqueuedAt: f.clock.Now().UTC(),
	}
	if err := f.queue.Enqueue(enqueueCtx, payload); err != nil {
		f.logger.Warn("enqueue webhook failed",
			slog.String("op", op),
			slog.String("event", string(ev.Kind)),
			slog.Any("error", err),
		)
	}
}
