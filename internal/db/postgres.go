package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS resume_history (
	id             UUID PRIMARY KEY,
	task_id        TEXT NOT NULL,
	filename       TEXT NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	file_size      BIGINT NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	file_type      TEXT NOT NULL,
	method         TEXT NOT NULL DEFAULT '',
	resume_data    JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message  TEXT NOT NULL DEFAULT '',
	owner_id       UUID,
	checksum       TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_resume_history_processed_at ON resume_history (processed_at DESC);
CREATE INDEX IF NOT EXISTS idx_resume_history_owner ON resume_history (owner_id, processed_at DESC);
`

const historyColumns = `id, task_id, filename, processed_at, file_size, status, file_type, method, error_message, owner_id`

// PostgresStore wraps a PostgreSQL connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureSchema creates the history table and indexes if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return nil
}

// SaveHistory inserts a record. ID and ProcessedAt are generated when unset
// and SchemaVersion is read back from the column default.
func (s *PostgresStore) SaveHistory(ctx context.Context, rec *HistoryRecord) error {
	prepareRecord(rec, time.Now())
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resume_history
		   (id, task_id, filename, processed_at, file_size, status, file_type, method, resume_data, error_message, owner_id, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING schema_version`,
		rec.ID, rec.TaskID, rec.Filename, rec.ProcessedAt, rec.FileSize, rec.Status, rec.FileType,
		rec.Method, []byte(rec.Profile), rec.ErrorMessage, rec.OwnerID, rec.Checksum,
	).Scan(&rec.SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to save history record: %w", err)
	}
	return nil
}

// ListHistory retrieves records newest first, without payloads
func (s *PostgresStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistorySummary, error) {
	filter = normalizeFilter(filter)

	query := `SELECT ` + historyColumns + ` FROM resume_history WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.OwnerID != nil {
		query += fmt.Sprintf(" AND owner_id = $%d", argNum)
		args = append(args, *filter.OwnerID)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY processed_at DESC, id LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	summaries := []HistorySummary{}
	for rows.Next() {
		var h HistorySummary
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Filename, &h.ProcessedAt, &h.FileSize, &h.Status,
			&h.FileType, &h.Method, &h.ErrorMessage, &h.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		summaries = append(summaries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return summaries, nil
}

// GetHistory retrieves a record by ID
func (s *PostgresStore) GetHistory(ctx context.Context, id uuid.UUID) (*HistoryRecord, error) {
	var rec HistoryRecord
	var profile []byte
	err := s.pool.QueryRow(ctx,
		`SELECT `+historyColumns+`, resume_data, checksum, schema_version
		 FROM resume_history WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.TaskID, &rec.Filename, &rec.ProcessedAt, &rec.FileSize, &rec.Status,
		&rec.FileType, &rec.Method, &rec.ErrorMessage, &rec.OwnerID, &profile, &rec.Checksum, &rec.SchemaVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	rec.Profile = profile
	return &rec, nil
}

// DeleteHistory removes a record
func (s *PostgresStore) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM resume_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
