package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/observability"
	"hyperlocal/pkg/e"
	"hyperlocal/pkg/validator"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// IncidentManager owns the report / confirm / resolve / query use cases.
// Writes to one incident and the event they produce happen under that
// incident's lock, so sessions observe created before confirmed or removed.
type IncidentManager struct {
	repo      IncidentRepository
	enricher  Enricher
	publisher Publisher
	cache     RecentCache
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
	locks     *keyedMutex
}

// NewIncidentService builds the manager. cache may be nil.
func NewIncidentService(
	repo IncidentRepository,
	enricher Enricher,
	publisher Publisher,
	cache RecentCache,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *IncidentManager {
	return &IncidentManager{
		repo:      repo,
		enricher:  enricher,
		publisher: publisher,
		cache:     cache,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		locks:     newKeyedMutex(),
	}
}

func (s *IncidentManager) Report(ctx context.Context, req domain.ReportIncidentRequest) (*domain.Incident, error) {
	const op = "service.Incident.Report"

	if err := validator.ValidateStruct(req); err != nil {
		s.metrics.ValidationFailures.Inc()
		if missing := validator.MissingFields(err); len(missing) > 0 {
			return nil, e.Validation("missing required fields: %s", strings.Join(missing, ", "))
		}
		return nil, e.Validation("%s", validator.Describe(err))
	}

	lat, lng := *req.Latitude, *req.Longitude
	enriched := s.enricher.Enrich(ctx, lat, lng)

	now := s.clock.Now().UTC()
	inc := &domain.Incident{
		ID:            uuid.New(),
		Location:      domain.NewGeoPoint(lat, lng),
		IncidentType:  req.IncidentType,
		Description:   req.Description,
		Address:       enriched.Address,
		Weather:       enriched.Weather,
		Confirmations: 0,
		Timestamp:     now,
		UpdatedAt:     now,
		IsActive:      true,
	}

	unlock := s.locks.Lock(inc.ID)
	defer unlock()

	if err := s.repo.Create(ctx, inc); err != nil {
		s.logger.Error("failed to store incident", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.IncidentsReported.WithLabelValues(string(inc.IncidentType)).Inc()
	// invalidate first: a client resyncing right after the event must not read the old list
	s.invalidate(ctx)
	s.publisher.Publish(ctx, domain.NewIncidentCreated(*inc))

	s.logger.Info("incident reported",
		slog.String("id", inc.ID.String()),
		slog.String("type", string(inc.IncidentType)),
		slog.String("address", inc.Address))

	return inc, nil
}

func (s *IncidentManager) Confirm(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "service.Incident.Confirm"

	unlock := s.locks.Lock(id)
	defer unlock()

	inc, err := s.repo.IncrementConfirmations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Confirmations.Inc()
	s.invalidate(ctx)
	s.publisher.Publish(ctx, domain.NewIncidentConfirmed(inc.ID, inc.Confirmations))

	return inc, nil
}

// Resolve is idempotent: resolving an inactive incident succeeds without a second event.
func (s *IncidentManager) Resolve(ctx context.Context, id uuid.UUID) error {
	const op = "service.Incident.Resolve"

	unlock := s.locks.Lock(id)
	defer unlock()

	changed, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !changed {
		return nil
	}

	s.metrics.Resolutions.Inc()
	s.invalidate(ctx)
	s.publisher.Publish(ctx, domain.NewIncidentRemoved(id))

	return nil
}

func (s *IncidentManager) Query(ctx context.Context, req domain.QueryIncidentsRequest) ([]domain.Incident, error) {
	const op = "service.Incident.Query"

	if err := validator.ValidateStruct(req); err != nil {
		return nil, e.Validation("%s", validator.Describe(err))
	}

	if req.Center != nil {
		radius := req.RadiusMeters
		if radius <= 0 {
			radius = domain.DefaultRadiusMeters
		}
		out, err := s.repo.FindNearby(ctx, domain.NearbyQuery{
			Lat:          req.Center.Lat,
			Lng:          req.Center.Lng,
			RadiusMeters: radius,
			Limit:        domain.MaxQueryResults,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return out, nil
	}

	if s.cache == nil {
		out, err := s.repo.ListRecent(ctx, domain.MaxQueryResults)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return out, nil
	}

	cached, ok, err := s.cache.GetRecent(ctx)
	if err != nil {
		s.logger.Warn("recent cache read failed", slog.String("op", op), slog.Any("error", err))
	} else if ok {
		return cached, nil
	}

	// the generation is read before the store so a write landing in between
	// makes the refill below a no-op
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.logger.Warn("recent cache generation read failed", slog.String("op", op), slog.Any("error", genErr))
	}

	out, err := s.repo.ListRecent(ctx, domain.MaxQueryResults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if genErr == nil {
		stored, err := s.cache.SetRecent(ctx, gen, out)
		if err != nil {
			s.logger.Warn("recent cache write failed", slog.String("op", op), slog.Any("error", err))
		} else if !stored {
			s.logger.Debug("recent cache refill skipped after concurrent write", slog.String("op", op))
		}
	}
	return out, nil
}

func (s *IncidentManager) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("recent cache invalidate failed", slog.Any("error", err))
	}
}
