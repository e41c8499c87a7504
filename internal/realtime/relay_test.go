package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/redis"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	published []redis.RelayMessage
	inbound   []redis.RelayMessage
	err       error
}

func (f *fakeRelay) Publish(_ context.Context, origin string, ev domain.Event) error {
	f.published = append(f.published, redis.RelayMessage{Origin: origin, Event: ev})
	return f.err
}

func (f *fakeRelay) Listen(_ context.Context, handle func(redis.RelayMessage)) error {
	for _, m := range f.inbound {
		handle(m)
	}
	return nil
}

func TestRelayedPublisher_PublishesLocallyAndRemotely(t *testing.T) {
	h := testHub(4)
	s, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	relay := &fakeRelay{err: errors.New("redis down")}
	p := NewRelayedPublisher(h.Topic(TopicIncidents), relay, "replica-a", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev := domain.NewIncidentRemoved(uuid.New())
	p.Publish(context.Background(), ev)

	assert.Equal(t, ev, <-s.Events())
	require.Len(t, relay.published, 1)
	assert.Equal(t, "replica-a", relay.published[0].Origin)
}

func TestRelayedPublisher_RunSkipsOwnOrigin(t *testing.T) {
	h := testHub(4)
	s, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	own := domain.NewIncidentRemoved(uuid.New())
	peer := domain.NewIncidentRemoved(uuid.New())
	relay := &fakeRelay{inbound: []redis.RelayMessage{
		{Origin: "replica-a", Event: own},
		{Origin: "replica-b", Event: peer},
	}}
	p := NewRelayedPublisher(h.Topic(TopicIncidents), relay, "replica-a", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, peer, <-s.Events())
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}
