// Package db provides durable storage for processed-resume history.
//
// Records are append-only: they are created once when a task terminates and
// removed only by an explicit delete.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is written by the column default on every new record
const CurrentSchemaVersion = 1

// Record status values
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when deleting a record that does not exist
var ErrNotFound = errors.New("history record not found")

// HistoryRecord is one processed document
type HistoryRecord struct {
	ID            uuid.UUID       `json:"id"`
	TaskID        string          `json:"task_id"`
	Filename      string          `json:"filename"`
	ProcessedAt   time.Time       `json:"processed_at"`
	FileSize      int64           `json:"file_size"`
	Status        string          `json:"status"`
	FileType      string          `json:"file_type"`
	Method        string          `json:"method"`
	Profile       json.RawMessage `json:"resume_data"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	OwnerID       *uuid.UUID      `json:"owner_id,omitempty"`
	Checksum      string          `json:"checksum,omitempty"`
	SchemaVersion int             `json:"schema_version"`
}

// HistorySummary is a record without its profile payload
type HistorySummary struct {
	ID           uuid.UUID  `json:"id"`
	TaskID       string     `json:"task_id"`
	Filename     string     `json:"filename"`
	ProcessedAt  time.Time  `json:"processed_at"`
	FileSize     int64      `json:"file_size"`
	Status       string     `json:"status"`
	FileType     string     `json:"file_type"`
	Method       string     `json:"method"`
	ErrorMessage string     `json:"error_message,omitempty"`
	OwnerID      *uuid.UUID `json:"owner_id,omitempty"`
}

// HistoryFilter holds paging and optional owner scoping for listing
type HistoryFilter struct {
	Limit   int
	Offset  int
	OwnerID *uuid.UUID
}

// HistoryStore persists history records
type HistoryStore interface {
	EnsureSchema(ctx context.Context) error
	SaveHistory(ctx context.Context, rec *HistoryRecord) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]HistorySummary, error)
	// GetHistory returns nil, nil when the record does not exist
	GetHistory(ctx context.Context, id uuid.UUID) (*HistoryRecord, error)
	DeleteHistory(ctx context.Context, id uuid.UUID) error
	Close() error
}

// Open connects to the configured store and ensures its schema exists
func Open(ctx context.Context, driver, url string) (HistoryStore, error) {
	var (
		store HistoryStore
		err   error
	)
	switch driver {
	case "postgres":
		store, err = Connect(ctx, url)
	case "sqlite":
		store, err = OpenSQLite(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// prepareRecord fills generated fields before insert
func prepareRecord(rec *HistoryRecord, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now
	}
	rec.ProcessedAt = rec.ProcessedAt.UTC()
	if len(rec.Profile) == 0 {
		rec.Profile = json.RawMessage(`{}`)
	}
}

func (r *HistoryRecord) summary() HistorySummary {
	return HistorySummary{
		ID:           r.ID,
		TaskID:       r.TaskID,
		Filename:     r.Filename,
		ProcessedAt:  r.ProcessedAt,
		FileSize:     r.FileSize,
		Status:       r.Status,
		FileType:     r.FileType,
		Method:       r.Method,
		ErrorMessage: r.ErrorMessage,
		OwnerID:      r.OwnerID,
	}
}

func normalizeFilter(f HistoryFilter) HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
