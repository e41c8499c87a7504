package syncagent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hyperlocal/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	snapshot []domain.Incident
	fetchErr error
	dialErr  error
	streams  chan *fakeStream
	fetches  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{streams: make(chan *fakeStream, 8)}
}

func (f *fakeSource) Fetch(context.Context) ([]domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]domain.Incident(nil), f.snapshot...), nil
}

func (f *fakeSource) Dial(context.Context) (Stream, error) {
	f.mu.Lock()
	err := f.dialErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := &fakeStream{events: make(chan domain.Event, 8), closed: make(chan struct{})}
	f.streams <- s
	return s, nil
}

type fakeStream struct {
	events chan domain.Event
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Next(ctx context.Context) (domain.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return domain.Event{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		if ctx.Err() != nil {
			return domain.Event{}, ctx.Err()
		}
		return domain.Event{}, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func quietAgent(src Source, opts ...Option) *Agent {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewAgent(src, opts...)
}

func TestAgent_ConnectedReplacesMirror(t *testing.T) {
	src := newFakeSource()
	inc := incidentAt(time.Now())
	src.snapshot = []domain.Incident{inc}

	a := quietAgent(src)
	assert.Equal(t, StateDisconnected, a.State())

	require.NoError(t, a.Connected(context.Background()))
	assert.Equal(t, StateSynced, a.State())
	assert.Contains(t, a.Mirror(), inc.ID)
}

func TestAgent_FailedFetchStaysStale(t *testing.T) {
	src := newFakeSource()
	src.fetchErr = errors.New("503")

	a := quietAgent(src)
	a.Disconnected()

	require.Error(t, a.Connected(context.Background()))
	assert.Equal(t, StateStale, a.State())
	assert.True(t, a.Suspect())
}

func TestAgent_DisconnectRetainsMirrorAndMarksSuspect(t *testing.T) {
	src := newFakeSource()
	inc := incidentAt(time.Now())
	src.snapshot = []domain.Incident{inc}

	a := quietAgent(src)
	require.NoError(t, a.Connected(context.Background()))
	a.Disconnected()

	assert.Equal(t, StateDisconnected, a.State())
	assert.True(t, a.Suspect())
	assert.Len(t, a.Mirror(), 1)

	assert.False(t, a.Apply(domain.NewIncidentRemoved(inc.ID)), "events are ignored while disconnected")
	assert.Len(t, a.Mirror(), 1)

	require.NoError(t, a.Connected(context.Background()))
	assert.False(t, a.Suspect())
}

func TestAgent_ApplyKeepsSyncedAndNotifies(t *testing.T) {
	src := newFakeSource()
	var reasons []string
	a := quietAgent(src, WithOnChange(func(reason string, _ Mirror) { reasons = append(reasons, reason) }))
	require.NoError(t, a.Connected(context.Background()))

	inc := incidentAt(time.Now())
	require.True(t, a.Apply(domain.NewIncidentCreated(inc)))

	assert.Equal(t, StateSynced, a.State())
	assert.Equal(t, []string{"resync", "new-incident"}, reasons)
}

func TestAgents_DoNotShareState(t *testing.T) {
	src := newFakeSource()
	a := quietAgent(src)
	b := quietAgent(src)
	require.NoError(t, a.Connected(context.Background()))
	require.NoError(t, b.Connected(context.Background()))

	a.Apply(domain.NewIncidentCreated(incidentAt(time.Now())))

	assert.Len(t, a.Mirror(), 1)
	assert.Empty(t, b.Mirror())
}

func TestAgent_RunReconnectsAndResyncs(t *testing.T) {
	src := newFakeSource()
	first := incidentAt(time.Now())
	src.snapshot = []domain.Incident{first}

	a := quietAgent(src, WithBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	s1 := <-src.streams
	require.Eventually(t, func() bool { return a.State() == StateSynced }, time.Second, time.Millisecond)

	created := incidentAt(time.Now())
	s1.events <- domain.NewIncidentCreated(created)
	require.Eventually(t, func() bool { return len(a.Mirror()) == 2 }, time.Second, time.Millisecond)

	// Server drops the connection; the snapshot has moved on meanwhile.
	src.mu.Lock()
	src.snapshot = []domain.Incident{created}
	src.mu.Unlock()
	close(s1.events)

	<-src.streams
	require.Eventually(t, func() bool {
		m := a.Mirror()
		_, hasFirst := m[first.ID]
		return a.State() == StateSynced && !hasFirst && len(m) == 1
	}, time.Second, time.Millisecond)
	assert.False(t, a.Suspect())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateDisconnected, a.State())
}

func TestAgent_RunBacksOffOnDialFailure(t *testing.T) {
	src := newFakeSource()
	src.dialErr = errors.New("connection refused")

	a := quietAgent(src, WithBackoff(time.Millisecond, 2*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Run(ctx))
	assert.Equal(t, StateDisconnected, a.State())
	assert.Zero(t, src.fetches)
}
