package postgres

import (
	"context"
	"time"

	"hyperlocal/internal/domain"

	"github.com/google/uuid"
)

// IncidentRepository is the full surface the service layer needs from a store.
type IncidentRepository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	IncrementConfirmations(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
	FindNearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Incident, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Incident, error)
	CountActiveByType(ctx context.Context) (map[domain.IncidentType]int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

var _ IncidentRepository = (*IncidentRepo)(nil)
