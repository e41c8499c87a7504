package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/enrichment"
	"hyperlocal/internal/observability"
	"hyperlocal/internal/service"
	"hyperlocal/internal/storage/memory"
)

// generationCache mirrors the redis recent cache: Invalidate bumps a
// generation and SetRecent is dropped when the generation moved.
type generationCache struct {
	mu       sync.Mutex
	gen      int64
	list     []domain.Incident
	hasList  bool
	rejected int
}

func (c *generationCache) GetRecent(context.Context) ([]domain.Incident, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Incident(nil), c.list...), c.hasList, nil
}

func (c *generationCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *generationCache) SetRecent(_ context.Context, gen int64, incidents []domain.Incident) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.rejected++
		return false, nil
	}
	c.list = append([]domain.Incident(nil), incidents...)
	c.hasList = true
	return true, nil
}

func (c *generationCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.list = nil
	c.hasList = false
	return nil
}

func (c *generationCache) generation() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// pausingStore lets one ListRecent read the store and then waits for release
// before handing the rows back.
type pausingStore struct {
	*memory.Store
	pause   bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *pausingStore) ListRecent(ctx context.Context, limit int) ([]domain.Incident, error) {
	out, err := s.Store.ListRecent(ctx, limit)
	if s.pause {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return out, err
}

// publishedGeneration records the cache generation visible when each event goes out.
type publishedGeneration struct {
	mu    sync.Mutex
	cache *generationCache
	seen  []int64
}

func (p *publishedGeneration) Publish(context.Context, domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, p.cache.generation())
}

func TestIncidentService_Query_StaleRefillAfterResolveIsDropped(t *testing.T) {
	t.Parallel()

	clock := fixedClock()
	store := &pausingStore{
		Store:   memory.NewStore(clock, newTestLogger()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := &generationCache{}
	svc := service.NewIncidentService(store, staticEnricher{out: enrichmentUnknown()}, &recordingPublisher{}, cache,
		clock, observability.NewMetricsForTesting(), newTestLogger())
	ctx := context.Background()

	inc, err := svc.Report(ctx, validRequest())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}

	store.pause = true
	done := make(chan []domain.Incident, 1)
	go func() {
		out, err := svc.Query(ctx, domain.QueryIncidentsRequest{})
		if err != nil {
			t.Errorf("Query: %v", err)
		}
		done <- out
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("query never reached the store")
	}

	if err := svc.Resolve(ctx, inc.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	close(store.release)

	if stale := <-done; len(stale) != 1 {
		t.Fatalf("in-flight query should see the pre-resolve snapshot, got %d", len(stale))
	}

	got, err := svc.Query(ctx, domain.QueryIncidentsRequest{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, i := range got {
		if i.ID == inc.ID {
			t.Fatalf("resolved incident served from cache")
		}
	}
	if cache.rejected != 1 {
		t.Fatalf("expected the stale refill to be rejected once, got %d", cache.rejected)
	}
}

func TestIncidentService_WritesInvalidateBeforePublishing(t *testing.T) {
	t.Parallel()

	clock := fixedClock()
	cache := &generationCache{}
	pub := &publishedGeneration{cache: cache}
	svc := service.NewIncidentService(memory.NewStore(clock, newTestLogger()), staticEnricher{out: enrichmentUnknown()}, pub, cache,
		clock, observability.NewMetricsForTesting(), newTestLogger())
	ctx := context.Background()

	inc, err := svc.Report(ctx, validRequest())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if _, err := svc.Confirm(ctx, inc.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := svc.Resolve(ctx, inc.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	want := []int64{1, 2, 3}
	if len(pub.seen) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(pub.seen))
	}
	for i := range want {
		if pub.seen[i] != want[i] {
			t.Fatalf("event %d published at generation %d, want %d", i, pub.seen[i], want[i])
		}
	}
}

func enrichmentUnknown() enrichment.Enrichment {
	return enrichment.Enrichment{Address: domain.UnknownAddress}
}
