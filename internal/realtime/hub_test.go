package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/observability"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(buffer int) *Hub {
	return NewHub(buffer, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	h := testHub(4)
	a, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)
	b, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	ev := domain.NewIncidentRemoved(uuid.New())
	assert.Equal(t, 2, h.Publish(context.Background(), TopicIncidents, ev))

	assert.Equal(t, ev, <-a.Events())
	assert.Equal(t, ev, <-b.Events())
	assert.Equal(t, 2, h.Sessions())
}

func TestHub_LateJoinerMissesEarlierEvents(t *testing.T) {
	h := testHub(4)
	h.Publish(context.Background(), TopicIncidents, domain.NewIncidentRemoved(uuid.New()))

	s, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	h := testHub(1)
	slow, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	first := domain.NewIncidentRemoved(uuid.New())
	second := domain.NewIncidentRemoved(uuid.New())
	assert.Equal(t, 1, h.Publish(context.Background(), TopicIncidents, first))
	assert.Equal(t, 0, h.Publish(context.Background(), TopicIncidents, second))

	assert.Equal(t, first, <-slow.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsDropped))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	h := testHub(1)
	s, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	s.Close()
	s.Close()

	_, open := <-s.Events()
	assert.False(t, open)
	assert.Zero(t, h.Count(TopicIncidents))
	assert.Zero(t, testutil.ToFloat64(h.metrics.RealtimeSessions))
	assert.Equal(t, 0, h.Publish(context.Background(), TopicIncidents, domain.NewIncidentRemoved(uuid.New())))
}

func TestHub_CloseEndsSessions(t *testing.T) {
	h := testHub(1)
	s, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	h.Close()

	_, open := <-s.Events()
	assert.False(t, open)
	_, err = h.Subscribe(TopicIncidents)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_InvalidTopic(t *testing.T) {
	_, err := testHub(1).Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestHub_ConcurrentJoinPublishDeliversAtMostOnce(t *testing.T) {
	const (
		publishers = 4
		perPub     = 50
		joiners    = 20
	)
	h := testHub(publishers * perPub)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions []*Session
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := h.Subscribe(TopicIncidents)
			if err != nil {
				t.Errorf("Subscribe: %v", err)
				return
			}
			mu.Lock()
			sessions = append(sessions, s)
			mu.Unlock()
		}()
	}
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPub; i++ {
				h.Publish(context.Background(), TopicIncidents, domain.NewIncidentRemoved(uuid.New()))
			}
		}()
	}
	wg.Wait()

	for _, s := range sessions {
		s.Close()
		seen := make(map[uuid.UUID]bool)
		for ev := range s.Events() {
			require.False(t, seen[ev.ID], "event delivered twice")
			seen[ev.ID] = true
		}
	}
}

func TestTopicPublisher_Publish(t *testing.T) {
	h := testHub(1)
	s, err := h.Subscribe(TopicIncidents)
	require.NoError(t, err)

	ev := domain.NewIncidentConfirmed(uuid.New(), 2)
	h.Topic(TopicIncidents).Publish(context.Background(), ev)

	assert.Equal(t, ev, <-s.Events())
}

func TestHub_SubscribeRacingCloseNeverLeaksSessions(t *testing.T) {
	for round := 0; round < 50; round++ {
		h := testHub(1)
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			sessions []*Session
		)
		start := make(chan struct{})
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				s, err := h.Subscribe(TopicIncidents)
				if err != nil {
					assert.ErrorIs(t, err, ErrHubClosed)
					return
				}
				mu.Lock()
				sessions = append(sessions, s)
				mu.Unlock()
			}()
		}
		close(start)
		h.Close()
		wg.Wait()

		for _, s := range sessions {
			_, open := <-s.Events()
			require.False(t, open, "session %d outlived Close", s.ID())
		}
		assert.Equal(t, 0, h.Sessions())
	}
}
