package syncagent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hyperlocal/internal/domain"

	"github.com/jonboulle/clockwork"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateStale        State = "connected-stale"
	StateSynced       State = "connected-synced"
)

// Source is the server as seen by an agent.
type Source interface {
	Fetch(ctx context.Context) ([]domain.Incident, error)
	Dial(ctx context.Context) (Stream, error)
}

type Stream interface {
	Next(ctx context.Context) (domain.Event, error)
	Close() error
}

type Option func(*Agent)

// WithOnChange registers a hook called after every applied event or resync.
func WithOnChange(fn func(reason string, m Mirror)) Option {
	return func(a *Agent) { a.onChange = fn }
}

func WithBackoff(min, max time.Duration) Option {
	return func(a *Agent) {
		a.minBackoff = min
		a.maxBackoff = max
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// Agent owns one session's mirror and connection state. Agents share nothing.
type Agent struct {
	mu      sync.Mutex
	mirror  Mirror
	state   State
	suspect bool

	source     Source
	onChange   func(reason string, m Mirror)
	clock      clockwork.Clock
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewAgent(source Source, opts ...Option) *Agent {
	a := &Agent{
		mirror:     Mirror{},
		state:      StateDisconnected,
		source:     source,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Suspect reports whether the mirror may have missed events since the last resync.
func (a *Agent) Suspect() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.suspect
}

func (a *Agent) Mirror() Mirror {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mirror
}

// Connected marks the session live and replaces the mirror with a full fetch.
// The agent reaches StateSynced only if the fetch succeeds.
func (a *Agent) Connected(ctx context.Context) error {
	a.mu.Lock()
	a.state = StateStale
	a.mu.Unlock()

	incidents, err := a.source.Fetch(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.mirror = Replace(incidents)
	a.suspect = false
	a.state = StateSynced
	m := a.mirror
	a.mu.Unlock()

	a.notify("resync", m)
	return nil
}

// Apply reduces one event into the mirror. Events are ignored while disconnected.
func (a *Agent) Apply(ev domain.Event) bool {
	a.mu.Lock()
	if a.state == StateDisconnected {
		a.mu.Unlock()
		return false
	}
	wasSynced := a.state == StateSynced
	a.state = StateStale
	a.mirror = Reduce(a.mirror, ev)
	if wasSynced {
		a.state = StateSynced
	}
	m := a.mirror
	a.mu.Unlock()

	a.notify(string(ev.Kind), m)
	return true
}

// Disconnected keeps the mirror and flags it suspect.
func (a *Agent) Disconnected() {
	a.mu.Lock()
	a.state = StateDisconnected
	a.suspect = true
	a.mu.Unlock()
}

// Run keeps the session alive until ctx is done: dial, resync, stream
// events, and reconnect with exponential backoff on any failure. The stream
// is opened before the fetch so no event between the two is lost.
func (a *Agent) Run(ctx context.Context) error {
	backoff := a.minBackoff
	for {
		if err := ctx.Err(); err != nil {
			a.Disconnected()
			return nil
		}

		synced, err := a.session(ctx)
		a.Disconnected()
		if ctx.Err() != nil {
			return nil
		}
		if synced {
			backoff = a.minBackoff
		}
		a.logger.Warn("sync session ended, reconnecting",
			slog.Any("error", err),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-a.clock.After(backoff):
		}
		backoff *= 2
		if backoff > a.maxBackoff {
			backoff = a.maxBackoff
		}
	}
}

func (a *Agent) session(ctx context.Context) (synced bool, err error) {
	stream, err := a.source.Dial(ctx)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	if err := a.Connected(ctx); err != nil {
		return false, err
	}

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return true, nil
			}
			return true, err
		}
		a.Apply(ev)
	}
}

func (a *Agent) notify(reason string, m Mirror) {
	if a.onChange != nil {
		a.onChange(reason, m)
	}
}
