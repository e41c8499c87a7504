package postgres

import (
	"context"
	"log/slog"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"
)

func (r *IncidentRepo) CountActiveByType(ctx context.Context) (map[domain.IncidentType]int64, error) {
	const op = "postgres.Incident.CountActiveByType"

	const query = `
		SELECT incident_type, COUNT(*)
		FROM incidents
		WHERE is_active
		GROUP BY incident_type`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		r.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	out := make(map[domain.IncidentType]int64, len(domain.IncidentTypes))
	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			r.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		out[domain.IncidentType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return out, nil
}
