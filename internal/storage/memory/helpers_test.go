package memory

import (
	"context"
	"fmt"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"

	"github.com/google/uuid"
)

func (s *Store) Get(_ context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "memory.Incident.Get"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	out := cloneIncident(*rec)
	return &out, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
