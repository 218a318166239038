// Package postgres is the shared-gallery backend for multi-node deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/farsight/personfinder/internal/core/domain"
)

type FaceRepository struct {
	db *sql.DB
}

func NewFaceRepository(db *sql.DB) *FaceRepository {
	return &FaceRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *FaceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS faces (
	person_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	age INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	embedding JSONB NOT NULL,
	photo_path TEXT NOT NULL,
	last_seen TEXT,
	reported_by TEXT,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_faces_status ON faces(status);
CREATE INDEX IF NOT EXISTS idx_faces_created_at ON faces(created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FaceRepository) Create(ctx context.Context, rec *domain.FaceRecord) error {
	embeddingJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO faces (
	person_id, name, age, description, embedding, photo_path, last_seen, reported_by, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		rec.PersonID, rec.Name, rec.Age, rec.Description, embeddingJSON,
		rec.PhotoPath, rec.LastSeen, rec.ReportedBy, string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert face record: %w", err)
	}
	return nil
}

func (r *FaceRepository) GetByID(ctx context.Context, personID string) (*domain.FaceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT person_id, name, age, description, embedding, photo_path, last_seen, reported_by, status, created_at
FROM faces
WHERE person_id = $1
`, personID)

	rec, err := scanFace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPersonNotFound, "postgres.GetByID", fmt.Errorf("person %s", personID))
		}
		return nil, err
	}
	return rec, nil
}

// List returns records ordered by creation time so matching tie-breaks stay
// stable across backends.
func (r *FaceRepository) List(ctx context.Context) ([]domain.FaceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT person_id, name, age, description, embedding, photo_path, last_seen, reported_by, status, created_at
FROM faces
ORDER BY created_at ASC, person_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list face records: %w", err)
	}
	defer rows.Close()

	var out []domain.FaceRecord
	for rows.Next() {
		rec, err := scanFace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face records: %w", err)
	}
	return out, nil
}

func (r *FaceRepository) UpdateStatus(ctx context.Context, personID string, status domain.CaseStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE faces
SET status = $2
WHERE person_id = $1
`, personID, string(status))
	if err != nil {
		return fmt.Errorf("update face status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrPersonNotFound, "postgres.UpdateStatus", fmt.Errorf("person %s", personID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFace(row rowScanner) (*domain.FaceRecord, error) {
	var rec domain.FaceRecord
	var embeddingRaw []byte
	var lastSeen, reportedBy sql.NullString
	var status string

	err := row.Scan(
		&rec.PersonID, &rec.Name, &rec.Age, &rec.Description, &embeddingRaw,
		&rec.PhotoPath, &lastSeen, &reportedBy, &status, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan face record: %w", err)
	}

	if err := json.Unmarshal(embeddingRaw, &rec.Embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	rec.LastSeen = lastSeen.String
	rec.ReportedBy = reportedBy.String
	rec.Status = domain.CaseStatus(status)
	return &rec, nil
}
