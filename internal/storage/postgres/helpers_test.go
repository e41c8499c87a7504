//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *IncidentRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "postgres.Incident.Get"

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	inc, err := scanIncident(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		return nil, e.WrapError(ctx, op, err)
	}
	return inc, nil
}
