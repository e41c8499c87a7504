package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS incidents (
	id            uuid PRIMARY KEY,
	location      geography(Point, 4326) NOT NULL,
	incident_type text NOT NULL CHECK (incident_type IN (
		'traffic_jam', 'road_closure', 'waterlogging', 'power_outage',
		'accident', 'construction', 'other'
	)),
	description   text NOT NULL CHECK (char_length(description) BETWEEN 1 AND 500),
	address       text NOT NULL DEFAULT 'Unknown location',
	weather       jsonb,
	confirmations bigint NOT NULL DEFAULT 0 CHECK (confirmations >= 0),
	reported_at   timestamptz NOT NULL,
	updated_at    timestamptz NOT NULL,
	is_active     boolean NOT NULL DEFAULT true
);

CREATE INDEX IF NOT EXISTS incidents_location_gix ON incidents USING GIST (location);
CREATE INDEX IF NOT EXISTS incidents_active_recent_idx ON incidents (reported_at DESC) WHERE is_active;
CREATE INDEX IF NOT EXISTS incidents_reported_at_idx ON incidents (reported_at);
`

// EnsureSchema creates the incidents table and its indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
