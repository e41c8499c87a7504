// Package memory is an in-process incident store. Points are bucketed into a
// fixed lat/lng grid so proximity queries only visit cells that intersect the
// query's bounding box before the exact great-circle filter.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"
	"hyperlocal/pkg/geo"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const cellSizeDeg = 0.25

type cellKey struct {
	lat, lng int
}

func cellOf(lat, lng float64) cellKey {
	if lng >= 180 {
		lng -= 360
	}
	return cellKey{
		lat: int(math.Floor(lat / cellSizeDeg)),
		lng: int(math.Floor(lng / cellSizeDeg)),
	}
}

type Store struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	logger  *slog.Logger
	records map[uuid.UUID]*domain.Incident
	cells   map[cellKey]map[uuid.UUID]struct{}
}

func NewStore(clock clockwork.Clock, logger *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:   clock,
		logger:  logger,
		records: make(map[uuid.UUID]*domain.Incident),
		cells:   make(map[cellKey]map[uuid.UUID]struct{}),
	}
}

func (s *Store) Create(_ context.Context, incident *domain.Incident) error {
	const op = "memory.Incident.Create"

	if incident == nil || !incident.Location.Valid() {
		return fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = s.clock.Now().UTC()
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.Timestamp
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[incident.ID]; exists {
		return fmt.Errorf("%s: %w", op, e.ErrUniqueViolation)
	}

	stored := cloneIncident(*incident)
	s.records[stored.ID] = &stored

	key := cellOf(stored.Location.Lat(), stored.Location.Lng())
	bucket := s.cells[key]
	if bucket == nil {
		bucket = make(map[uuid.UUID]struct{})
		s.cells[key] = bucket
	}
	bucket[stored.ID] = struct{}{}

	return nil
}

func (s *Store) IncrementConfirmations(_ context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "memory.Incident.IncrementConfirmations"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	rec.Confirmations++
	rec.UpdatedAt = s.clock.Now().UTC()

	out := cloneIncident(*rec)
	return &out, nil
}

func (s *Store) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	const op = "memory.Incident.Deactivate"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	if !rec.IsActive {
		return false, nil
	}
	rec.IsActive = false
	rec.UpdatedAt = s.clock.Now().UTC()
	return true, nil
}

func (s *Store) FindNearby(_ context.Context, q domain.NearbyQuery) ([]domain.Incident, error) {
	const op = "memory.Incident.FindNearby"

	if q.Lat < -90 || q.Lat > 90 || q.Lng < -180 || q.Lng > 180 || q.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}

	box := geo.BoundingBox(q.Lat, q.Lng, q.RadiusMeters)

	type hit struct {
		inc  domain.Incident
		dist float64
	}

	s.mu.RLock()
	var hits []hit
	for _, bucket := range s.candidateCells(box) {
		for id := range bucket {
			rec := s.records[id]
			if rec == nil || !rec.IsActive {
				continue
			}
			d := geo.DistanceMeters(q.Lat, q.Lng, rec.Location.Lat(), rec.Location.Lng())
			if d <= q.RadiusMeters {
				hits = append(hits, hit{inc: cloneIncident(*rec), dist: d})
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist == hits[j].dist {
			return hits[i].inc.Timestamp.After(hits[j].inc.Timestamp)
		}
		return hits[i].dist < hits[j].dist
	})

	out := make([]domain.Incident, 0, min(len(hits), limitOrDefault(q.Limit)))
	for _, h := range hits {
		if len(out) == limitOrDefault(q.Limit) {
			break
		}
		out = append(out, h.inc)
	}
	return out, nil
}

// candidateCells returns the occupied cells intersecting box. Caller holds mu.
func (s *Store) candidateCells(box geo.Box) map[cellKey]map[uuid.UUID]struct{} {
	minLat := int(math.Floor(box.MinLat / cellSizeDeg))
	maxLat := int(math.Floor(box.MaxLat / cellSizeDeg))

	out := make(map[cellKey]map[uuid.UUID]struct{})

	latSpan := maxLat - minLat + 1
	lngSpan := int(360 / cellSizeDeg)
	if !box.FullLng() {
		lngSpan = lngCellSpan(box)
	}

	// Walking the occupied cells is cheaper than walking a huge box.
	if latSpan*lngSpan > len(s.cells) {
		for key, bucket := range s.cells {
			if key.lat < minLat || key.lat > maxLat {
				continue
			}
			if !box.FullLng() && !cellIntersectsLng(key.lng, box) {
				continue
			}
			out[key] = bucket
		}
		return out
	}

	startLng := int(math.Floor(box.MinLng / cellSizeDeg))
	wrap := int(360 / cellSizeDeg)
	minLngCell := int(math.Floor(-180 / cellSizeDeg))
	for la := minLat; la <= maxLat; la++ {
		for i := 0; i < lngSpan; i++ {
			lo := startLng + i
			if lo >= minLngCell+wrap {
				lo -= wrap
			}
			key := cellKey{lat: la, lng: lo}
			if bucket, ok := s.cells[key]; ok {
				out[key] = bucket
			}
		}
	}
	return out
}

func lngCellSpan(box geo.Box) int {
	start := int(math.Floor(box.MinLng / cellSizeDeg))
	end := int(math.Floor(box.MaxLng / cellSizeDeg))
	if box.MinLng <= box.MaxLng {
		return end - start + 1
	}
	return end - start + 1 + int(360/cellSizeDeg)
}

func cellIntersectsLng(cellLng int, box geo.Box) bool {
	lo := float64(cellLng) * cellSizeDeg
	hi := lo + cellSizeDeg
	if box.MinLng <= box.MaxLng {
		return hi >= box.MinLng && lo <= box.MaxLng
	}
	return hi >= box.MinLng || lo <= box.MaxLng
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]domain.Incident, error) {
	s.mu.RLock()
	out := make([]domain.Incident, 0, len(s.records))
	for _, rec := range s.records {
		if rec.IsActive {
			out = append(out, cloneIncident(*rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if l := limitOrDefault(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}

func (s *Store) CountActiveByType(_ context.Context) (map[domain.IncidentType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.IncidentType]int64)
	for _, rec := range s.records {
		if rec.IsActive {
			counts[rec.IncidentType]++
		}
	}
	return counts, nil
}

// DeleteExpired hard-deletes every record whose timestamp is at or before cutoff.
func (s *Store) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.records {
		if rec.Timestamp.After(cutoff) {
			continue
		}
		key := cellOf(rec.Location.Lat(), rec.Location.Lng())
		if bucket := s.cells[key]; bucket != nil {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(s.cells, key)
			}
		}
		delete(s.records, id)
		n++
	}

	if n > 0 && s.logger != nil {
		s.logger.Debug("expired incidents removed", slog.String("op", "memory.Incident.DeleteExpired"), slog.Int64("count", n))
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > domain.MaxQueryResults {
		return domain.MaxQueryResults
	}
	return limit
}

func cloneIncident(in domain.Incident) domain.Incident {
	if in.Weather != nil {
		w := *in.Weather
		in.Weather = &w
	}
	return in
}
