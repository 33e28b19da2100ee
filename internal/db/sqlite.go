package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS resume_history (
	id             TEXT PRIMARY KEY,
	task_id        TEXT NOT NULL,
	filename       TEXT NOT NULL,
	processed_at   INTEGER NOT NULL,
	file_size      INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	file_type      TEXT NOT NULL,
	method         TEXT NOT NULL DEFAULT '',
	resume_data    TEXT NOT NULL DEFAULT '{}',
	error_message  TEXT NOT NULL DEFAULT '',
	owner_id       TEXT,
	checksum       TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_resume_history_processed_at ON resume_history (processed_at DESC);
CREATE INDEX IF NOT EXISTS idx_resume_history_owner ON resume_history (owner_id, processed_at DESC);
`

// SQLiteStore keeps history in a single SQLite file. processed_at is stored
// as Unix nanoseconds so ordering is numeric.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer at a time
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the history table and indexes if missing
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return nil
}

// SaveHistory inserts a record. ID and ProcessedAt are generated when unset
// and SchemaVersion is read back from the column default.
func (s *SQLiteStore) SaveHistory(ctx context.Context, rec *HistoryRecord) error {
	prepareRecord(rec, time.Now())
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO resume_history
		   (id, task_id, filename, processed_at, file_size, status, file_type, method, resume_data, error_message, owner_id, checksum)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING schema_version`,
		rec.ID.String(), rec.TaskID, rec.Filename, rec.ProcessedAt.UnixNano(), rec.FileSize, rec.Status,
		rec.FileType, rec.Method, string(rec.Profile), rec.ErrorMessage, ownerParam(rec.OwnerID), rec.Checksum,
	).Scan(&rec.SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to save history record: %w", err)
	}
	return nil
}

// ListHistory retrieves records newest first, without payloads
func (s *SQLiteStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistorySummary, error) {
	filter = normalizeFilter(filter)

	query := `SELECT ` + historyColumns + ` FROM resume_history WHERE 1=1`
	args := []any{}
	if filter.OwnerID != nil {
		query += " AND owner_id = ?"
		args = append(args, filter.OwnerID.String())
	}
	query += " ORDER BY processed_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []HistorySummary{}
	for rows.Next() {
		var rec HistoryRecord
		if err := scanSQLite(rows, &rec); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		summaries = append(summaries, rec.summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return summaries, nil
}

// GetHistory retrieves a record by ID
func (s *SQLiteStore) GetHistory(ctx context.Context, id uuid.UUID) (*HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+`, resume_data, checksum, schema_version
		 FROM resume_history WHERE id = ?`,
		id.String(),
	)
	var rec HistoryRecord
	var profile string
	if err := scanSQLite(row, &rec, &profile, &rec.Checksum, &rec.SchemaVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	rec.Profile = []byte(profile)
	return &rec, nil
}

// DeleteHistory removes a record
func (s *SQLiteStore) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resume_history WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSQLite reads historyColumns into rec, followed by any extra columns
func scanSQLite(row scanner, rec *HistoryRecord, extra ...any) error {
	var (
		id          string
		processedAt int64
		owner       sql.NullString
	)
	dest := []any{&id, &rec.TaskID, &rec.Filename, &processedAt, &rec.FileSize, &rec.Status,
		&rec.FileType, &rec.Method, &rec.ErrorMessage, &owner}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.ProcessedAt = time.Unix(0, processedAt).UTC()
	if owner.Valid {
		ownerID, err := uuid.Parse(owner.String)
		if err != nil {
			return fmt.Errorf("invalid owner id %q: %w", owner.String, err)
		}
		rec.OwnerID = &ownerID
	}
	return nil
}

func ownerParam(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
