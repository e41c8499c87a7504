package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"
)

// FindNearby returns active incidents within q.RadiusMeters of the point, nearest first.
// ST_DWithin on geography is inclusive and measured in meters.
func (r *IncidentRepo) FindNearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Incident, error) {
	const op = "postgres.Incident.FindNearby"

	if q.Lat < -90 || q.Lat > 90 || q.Lng < -180 || q.Lng > 180 || q.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}

	query := `
		WITH center AS (
			SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS g
		)
		SELECT ` + incidentColumns + `
		FROM incidents, center
		WHERE is_active
		  AND ST_DWithin(location, center.g, $3)
		ORDER BY ST_Distance(location, center.g), reported_at DESC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, q.Lng, q.Lat, q.RadiusMeters, limitOrDefault(q.Limit))
	if err != nil {
		r.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return r.collect(ctx, op, rows)
}
