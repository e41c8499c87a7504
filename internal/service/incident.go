package service

import (
	"context"

	"hyperlocal/internal/domain"

	"github.com/google/uuid"
)

func (s *Service) Report(ctx context.Context, req domain.ReportIncidentRequest) (*domain.Incident, error) {
	return s.IncidentService.Report(ctx, req)
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	return s.IncidentService.Confirm(ctx, id)
}

func (s *Service) Resolve(ctx context.Context, id uuid.UUID) error {
	return s.IncidentService.Resolve(ctx, id)
}

func (s *Service) Query(ctx context.Context, req domain.QueryIncidentsRequest) ([]domain.Incident, error) {
	return s.IncidentService.Query(ctx, req)
}

func (s *Service) GetStats(ctx context.Context) (*domain.IncidentStats, error) {
	return s.StatsService.GetStats(ctx)
}
