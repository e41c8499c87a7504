package service

import (
	"context"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/enrichment"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go
type IncidentService interface {
	Report(ctx context.Context, req domain.ReportIncidentRequest) (*domain.Incident, error)
	Confirm(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	Resolve(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, req domain.QueryIncidentsRequest) ([]domain.Incident, error)
}

type StatsService interface {
	GetStats(ctx context.Context) (*domain.IncidentStats, error)
}

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

type Enricher interface {
	Enrich(ctx context.Context, lat, lng float64) enrichment.Enrichment
}

// Publisher fans an event out to every live session.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// RecentCache holds the unfiltered most-recent list between writes.
// SetRecent stores only if no Invalidate happened since gen was read.
type RecentCache interface {
	GetRecent(ctx context.Context) ([]domain.Incident, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetRecent(ctx context.Context, gen int64, incidents []domain.Incident) (bool, error)
	Invalidate(ctx context.Context) error
}

type SessionCounter interface {
	Sessions() int
}

type Service struct {
	IncidentService IncidentService
	StatsService    StatsService
}

func NewService(incidentService IncidentService, statsService StatsService) *Service {
	return &Service{
		IncidentService: incidentService,
		StatsService:    statsService,
	}
}
