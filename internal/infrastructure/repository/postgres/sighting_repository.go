package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/farsight/personfinder/internal/core/domain"
)

type SightingRepository struct {
	db *sql.DB
}

func NewSightingRepository(db *sql.DB) *SightingRepository {
	return &SightingRepository{db: db}
}

func (r *SightingRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sightings (
	id TEXT PRIMARY KEY,
	stream_id TEXT NOT NULL,
	missing_person_id TEXT NOT NULL,
	detected_person_id TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	top_color TEXT,
	bottom_color TEXT,
	sighted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sightings_missing_person ON sightings(missing_person_id, sighted_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SightingRepository) RecordSighting(ctx context.Context, s domain.Sighting) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sightings (
	id, stream_id, missing_person_id, detected_person_id, confidence, top_color, bottom_color, sighted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`,
		s.ID, s.StreamID, s.MissingPersonID, s.DetectedPersonID,
		s.Confidence, s.TopColor, s.BottomColor, s.SightedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}
	return nil
}

// RecentSightings returns the newest sightings for one missing person.
func (r *SightingRepository) RecentSightings(ctx context.Context, missingPersonID string, limit int) ([]domain.Sighting, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, stream_id, missing_person_id, detected_person_id, confidence, top_color, bottom_color, sighted_at
FROM sightings
WHERE missing_person_id = $1
ORDER BY sighted_at DESC
LIMIT $2
`, missingPersonID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var out []domain.Sighting
	for rows.Next() {
		var s domain.Sighting
		var topColor, bottomColor sql.NullString
		if err := rows.Scan(&s.ID, &s.StreamID, &s.MissingPersonID, &s.DetectedPersonID,
			&s.Confidence, &topColor, &bottomColor, &s.SightedAt); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		s.TopColor = topColor.String
		s.BottomColor = bottomColor.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return out, nil
}
