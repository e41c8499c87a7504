package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	id,
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lng,
	incident_type,
	description,
	address,
	weather,
	confirmations,
	reported_at,
	updated_at,
	is_active`

type IncidentRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

func NewIncidentRepo(pool *pgxpool.Pool, logger *slog.Logger) *IncidentRepo {
	return &IncidentRepo{pool: pool, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (r *IncidentRepo) Create(ctx context.Context, incident *domain.Incident) error {
	const op = "postgres.Incident.Create"

	if incident == nil || !incident.Location.Valid() {
		return fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = r.now()
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.Timestamp
	}
	if incident.Address == "" {
		incident.Address = domain.UnknownAddress
	}

	var weather []byte
	if incident.Weather != nil {
		raw, err := json.Marshal(incident.Weather)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		weather = raw
	}

	const query = `
		INSERT INTO incidents (
			id, location, incident_type, description, address, weather,
			confirmations, reported_at, updated_at, is_active
		) VALUES (
			$1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5, $6, $7,
			$8, $9, $10, $11
		)`

	_, err := r.pool.Exec(ctx, query,
		incident.ID,
		incident.Location.Lng(),
		incident.Location.Lat(),
		string(incident.IncidentType),
		incident.Description,
		incident.Address,
		weather,
		incident.Confirmations,
		incident.Timestamp,
		incident.UpdatedAt,
		incident.IsActive,
	)
	if err != nil {
		r.logger.Error("failed to insert incident", slog.String("op", op), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}
	return nil
}

// IncrementConfirmations is a single atomic UPDATE; concurrent callers never lose increments.
func (r *IncidentRepo) IncrementConfirmations(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "postgres.Incident.IncrementConfirmations"

	query := `
		UPDATE incidents
		SET confirmations = confirmations + 1, updated_at = $2
		WHERE id = $1
		RETURNING ` + incidentColumns

	inc, err := scanIncident(r.pool.QueryRow(ctx, query, id, r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		r.logger.Error("failed to increment confirmations", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return inc, nil
}

// Deactivate reports whether the record flipped from active to inactive.
func (r *IncidentRepo) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.Incident.Deactivate"

	const query = `
		WITH upd AS (
			UPDATE incidents
			SET is_active = false, updated_at = $2
			WHERE id = $1 AND is_active
			RETURNING id
		)
		SELECT
			EXISTS (SELECT 1 FROM incidents WHERE id = $1),
			EXISTS (SELECT 1 FROM upd)`

	var found, changed bool
	if err := r.pool.QueryRow(ctx, query, id, r.now()).Scan(&found, &changed); err != nil {
		r.logger.Error("failed to deactivate incident", slog.String("op", op), slog.Any("error", err))
		return false, e.WrapError(ctx, op, err)
	}
	if !found {
		return false, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return changed, nil
}

func (r *IncidentRepo) ListRecent(ctx context.Context, limit int) ([]domain.Incident, error) {
	const op = "postgres.Incident.ListRecent"

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE is_active
		ORDER BY reported_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limitOrDefault(limit))
	if err != nil {
		r.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return r.collect(ctx, op, rows)
}

func (r *IncidentRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgres.Incident.DeleteExpired"

	tag, err := r.pool.Exec(ctx, `DELETE FROM incidents WHERE reported_at <= $1`, cutoff)
	if err != nil {
		r.logger.Error("failed to delete expired incidents", slog.String("op", op), slog.Any("error", err))
		return 0, e.WrapError(ctx, op, err)
	}
	return tag.RowsAffected(), nil
}

func (r *IncidentRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *IncidentRepo) collect(ctx context.Context, op string, rows pgx.Rows) ([]domain.Incident, error) {
	defer rows.Close()

	out := make([]domain.Incident, 0, 16)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			r.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return out, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc          domain.Incident
		lat, lng     float64
		incidentType string
		weather      []byte
	)
	err := row.Scan(
		&inc.ID,
		&lat,
		&lng,
		&incidentType,
		&inc.Description,
		&inc.Address,
		&weather,
		&inc.Confirmations,
		&inc.Timestamp,
		&inc.UpdatedAt,
		&inc.IsActive,
	)
	if err != nil {
		return nil, err
	}
	inc.Location = domain.NewGeoPoint(lat, lng)
	inc.IncidentType = domain.IncidentType(incidentType)
	inc.Timestamp = inc.Timestamp.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	if len(weather) > 0 {
		var w domain.Weather
		if err := json.Unmarshal(weather, &w); err != nil {
			return nil, err
		}
		inc.Weather = &w
	}
	return &inc, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > domain.MaxQueryResults {
		return domain.MaxQueryResults
	}
	return limit
}
