// Package realtime fans incident events out to live sessions over
// websocket and server-sent events.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/observability"
)

const (
	TopicIncidents = "incidents"

	DefaultSessionBuffer = 32
)

var (
	ErrHubClosed    = errors.New("realtime: hub closed")
	ErrInvalidTopic = errors.New("realtime: invalid topic")
)

// Hub keeps an explicit subscriber set per topic. Publishing and joining
// share the topic lock: an event reaches a session iff the session joined
// before the publish, and at most once.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]*topic
	buffer  int
	closed  bool
	metrics *observability.Metrics
	logger  *slog.Logger
}

type topic struct {
	mu     sync.Mutex
	subs   map[uint64]*Session
	nextID uint64
}

type Session struct {
	hub   *Hub
	topic string
	id    uint64
	ch    chan domain.Event
	once  sync.Once
}

func NewHub(buffer int, metrics *observability.Metrics, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &Hub{
		topics:  make(map[string]*topic),
		buffer:  buffer,
		metrics: metrics,
		logger:  logger,
	}
}

func (h *Hub) Subscribe(name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTopic
	}

	t, err := h.ensureTopic(name)
	if err != nil {
		return nil, err
	}

	// Close flips closed under the write lock before collecting sessions,
	// so an insert made under the read lock is always seen by Close.
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrHubClosed
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	s := &Session{
		hub:   h,
		topic: name,
		id:    id,
		ch:    make(chan domain.Event, h.buffer),
	}
	t.subs[id] = s
	h.metrics.RealtimeSessions.Inc()
	t.mu.Unlock()
	h.mu.RUnlock()

	return s, nil
}

// Publish never blocks: a session whose buffer is full misses the event.
// It returns the number of sessions the event was handed to.
func (h *Hub) Publish(_ context.Context, name string, ev domain.Event) int {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()

	h.metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	if t == nil {
		return 0
	}

	delivered := 0
	t.mu.Lock()
	for _, s := range t.subs {
		select {
		case s.ch <- ev:
			delivered++
		default:
			h.metrics.EventsDropped.Inc()
			h.logger.Warn("session buffer full, dropping event",
				slog.String("topic", name),
				slog.Uint64("session", s.id),
				slog.String("event", string(ev.Kind)))
		}
	}
	t.mu.Unlock()

	return delivered
}

func (h *Hub) Count(name string) int {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Sessions reports live sessions on the incidents topic.
func (h *Hub) Sessions() int {
	return h.Count(TopicIncidents)
}

// Topic binds the hub to one topic for callers that publish to a single stream.
func (h *Hub) Topic(name string) *TopicPublisher {
	return &TopicPublisher{hub: h, name: name}
}

// Close ends every session; later Subscribe calls fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	topics := make([]*topic, 0, len(h.topics))
	for _, t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		sessions := make([]*Session, 0, len(t.subs))
		for _, s := range t.subs {
			sessions = append(sessions, s)
		}
		t.mu.Unlock()
		for _, s := range sessions {
			s.Close()
		}
	}
}

func (h *Hub) ensureTopic(name string) (*topic, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrHubClosed
	}
	t := h.topics[name]
	h.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	t = h.topics[name]
	if t == nil {
		t = &topic{subs: make(map[uint64]*Session)}
		h.topics[name] = t
	}
	return t, nil
}

func (h *Hub) leave(name string, id uint64) bool {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.subs[id]
	if !ok {
		return false
	}
	delete(t.subs, id)
	close(s.ch)
	return true
}

func (s *Session) ID() uint64 {
	return s.id
}

// Events is closed when the session leaves the hub.
func (s *Session) Events() <-chan domain.Event {
	return s.ch
}

func (s *Session) Close() {
	s.once.Do(func() {
		if s.hub.leave(s.topic, s.id) {
			s.hub.metrics.RealtimeSessions.Dec()
		}
	})
}

type TopicPublisher struct {
	hub  *Hub
	name string
}

func (p *TopicPublisher) Publish(ctx context.Context, ev domain.Event) {
	p.hub.Publish(ctx, p.name, ev)
}
