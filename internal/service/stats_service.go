package service

import (
	"context"
	"fmt"

	"hyperlocal/internal/domain"
)

type StatsReporter struct {
	repo     IncidentRepository
	sessions SessionCounter
}

func NewStatsService(repo IncidentRepository, sessions SessionCounter) *StatsReporter {
	return &StatsReporter{repo: repo, sessions: sessions}
}

func (s *StatsReporter) GetStats(ctx context.Context) (*domain.IncidentStats, error) {
	const op = "service.Stats.GetStats"

	byType, err := s.repo.CountActiveByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &domain.IncidentStats{ByType: byType}
	for _, n := range byType {
		stats.ActiveIncidents += n
	}
	if s.sessions != nil {
		stats.OnlineSessions = s.sessions.Sessions()
	}
	return stats, nil
}
