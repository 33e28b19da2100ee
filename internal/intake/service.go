// Package intake is the service surface of the resume pipeline: it accepts
// uploads, schedules them, reports progress and serves the history.
package intake

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/tasks"
	"github.com/jonathan/resume-intake/internal/types"
)

// History paging bounds
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

// allowedTypes maps each accepted extension to the MIME types it may be declared as
var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf", "application/x-pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

// MIMETypeFor returns the canonical MIME type for an accepted extension, or
// "" when the extension is not accepted.
func MIMETypeFor(ext string) string {
	if accepted, ok := allowedTypes[strings.ToLower(ext)]; ok {
		return accepted[0]
	}
	return ""
}

// Enqueuer schedules a task for background processing without blocking
type Enqueuer interface {
	Enqueue(id string) error
}

// HistoryReader is the part of the history store the service exposes
type HistoryReader interface {
	ListHistory(ctx context.Context, filter db.HistoryFilter) ([]db.HistorySummary, error)
	GetHistory(ctx context.Context, id uuid.UUID) (*db.HistoryRecord, error)
	DeleteHistory(ctx context.Context, id uuid.UUID) error
}

// SubmitRequest is one uploaded document
type SubmitRequest struct {
	Filename string `validate:"required,max=255"`
	MIMEType string `validate:"required"`
	Data     []byte `validate:"required,min=1"`
	Strategy string `validate:"omitempty,oneof=visual textual"`
	OwnerID  *uuid.UUID
}

// SubmitResponse acknowledges an accepted upload
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// PollResponse is the externally visible state of a task. Data is set only
// on completed tasks and Error only on failed ones.
type PollResponse struct {
	Status   tasks.Status   `json:"status"`
	Stage    tasks.Stage    `json:"stage"`
	Progress int            `json:"progress"`
	Method   tasks.Strategy `json:"method,omitempty"`
	Data     *types.Profile `json:"data"`
	Error    *string        `json:"error"`
}

// Service ties the registry, the work queue and the history store together
type Service struct {
	registry *tasks.Registry
	queue    Enqueuer
	history  HistoryReader
	workDir  string
	maxBytes int64
	validate *validator.Validate
	logger   zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithWorkDir sets where uploads are written until processed
func WithWorkDir(dir string) Option {
	return func(s *Service) { s.workDir = dir }
}

// WithMaxUploadBytes caps the accepted document size
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) { s.maxBytes = n }
}

// WithHistory enables the history operations
func WithHistory(h HistoryReader) Option {
	return func(s *Service) { s.history = h }
}

// WithLogger sets the service logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service
func NewService(registry *tasks.Registry, queue Enqueuer, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		queue:    queue,
		workDir:  os.TempDir(),
		validate: validator.New(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the upload, stores it in the work directory and
// schedules it. A request rejected before the task is created leaves nothing
// behind. If scheduling fails the task stays in the registry as failed and
// the stored upload is removed.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	ext, err := s.check(req)
	if err != nil {
		s.logger.Info().Str("filename", req.Filename).Err(err).Msg("intake.rejected")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strategy, _ := tasks.ParseStrategy(req.Strategy)
	sum := blake2b.Sum256(req.Data)
	detected := mimetype.Detect(req.Data)
	if !detectedMatches(ext, detected) {
		s.logger.Warn().
			Str("filename", req.Filename).
			Str("declared", req.MIMEType).
			Str("detected", detected.String()).
			Msg("intake.mime.mismatch")
	}

	path, err := s.store(ext, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	id := s.registry.Create(tasks.Metadata{
		Filename:     filepath.Base(req.Filename),
		Size:         int64(len(req.Data)),
		Extension:    ext,
		MIMEType:     req.MIMEType,
		DetectedMIME: detected.String(),
		Checksum:     hex.EncodeToString(sum[:]),
		Strategy:     strategy,
		OwnerID:      req.OwnerID,
	}, tasks.Resources{InputPath: path})

	if err := s.queue.Enqueue(id); err != nil {
		msg := "could not schedule processing: " + err.Error()
		if uerr := s.registry.Update(id, func(t *tasks.Task) {
			t.Status = tasks.StatusFailed
			t.Error = msg
		}); uerr != nil {
			s.logger.Warn().Str("task_id", id).Err(uerr).Msg("intake.fail_task")
		}
		_ = os.Remove(path)
		return nil, fmt.Errorf("schedule task %s: %w", id, err)
	}

	s.logger.Info().
		Str("task_id", id).
		Str("filename", req.Filename).
		Int("size", len(req.Data)).
		Str("strategy", string(strategy)).
		Msg("intake.accepted")
	return &SubmitResponse{TaskID: id, Status: string(tasks.StatusProcessing)}, nil
}

// check validates the request and returns the normalized extension
func (s *Service) check(req SubmitRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return "", &ValidationError{Field: strings.ToLower(fe.Field()), Message: fmt.Sprintf("failed '%s'", fe.Tag())}
		}
		return "", &ValidationError{Field: "request", Message: err.Error()}
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	allowed, ok := allowedTypes[ext]
	if !ok {
		return "", &ValidationError{Field: "filename", Message: "only PDF, DOC, or DOCX files are supported"}
	}
	mediaType, _, err := mime.ParseMediaType(req.MIMEType)
	if err != nil || !slices.Contains(allowed, mediaType) {
		return "", &ValidationError{Field: "mime_type", Message: fmt.Sprintf("%q is not accepted for %s files", req.MIMEType, ext)}
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		return "", &ValidationError{Field: "file", Message: fmt.Sprintf("file exceeds %d bytes", s.maxBytes)}
	}
	return ext, nil
}

func (s *Service) store(ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.workDir, 0o750); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.workDir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Poll reports the state of a task visible to owner
func (s *Service) Poll(id string, owner *uuid.UUID) (*PollResponse, error) {
	t, err := s.task(id, owner)
	if err != nil {
		return nil, err
	}
	return NewPollResponse(t), nil
}

// NewPollResponse projects a task snapshot onto its externally visible state
func NewPollResponse(t tasks.Task) *PollResponse {
	resp := &PollResponse{
		Status:   t.Status,
		Stage:    t.Stage,
		Progress: t.Progress,
		Method:   t.Method,
	}
	switch t.Status {
	case tasks.StatusCompleted:
		resp.Data = t.Result
	case tasks.StatusFailed:
		msg := t.Error
		resp.Error = &msg
	}
	return resp
}

// Watch streams snapshots of a task until it terminates or cancel is called
func (s *Service) Watch(id string, owner *uuid.UUID) (<-chan tasks.Task, func(), error) {
	if _, err := s.task(id, owner); err != nil {
		return nil, nil, err
	}
	ch, cancel, err := s.registry.Subscribe(id)
	if errors.Is(err, tasks.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	return ch, cancel, err
}

func (s *Service) task(id string, owner *uuid.UUID) (tasks.Task, error) {
	t, err := s.registry.Get(id)
	if errors.Is(err, tasks.ErrNotFound) {
		return tasks.Task{}, ErrNotFound
	}
	if err != nil {
		return tasks.Task{}, err
	}
	if !visible(t.Metadata.OwnerID, owner) {
		return tasks.Task{}, ErrNotFound
	}
	return t, nil
}

// ListHistory returns summaries, newest first. A zero limit means the
// default and larger limits are capped.
func (s *Service) ListHistory(ctx context.Context, limit, offset int, owner *uuid.UUID) ([]db.HistorySummary, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if limit < 0 {
		return nil, &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if offset < 0 {
		return nil, &ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	items, err := s.history.ListHistory(ctx, db.HistoryFilter{Limit: limit, Offset: offset, OwnerID: owner})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	if items == nil {
		items = []db.HistorySummary{}
	}
	return items, nil
}

// GetHistory returns one full record
func (s *Service) GetHistory(ctx context.Context, id string, owner *uuid.UUID) (*db.HistoryRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	recID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.history.GetHistory(ctx, recID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if rec == nil || !visible(rec.OwnerID, owner) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// DeleteHistory removes one record
func (s *Service) DeleteHistory(ctx context.Context, id string, owner *uuid.UUID) error {
	if owner != nil {
		// ownership is checked before deleting
		if _, err := s.GetHistory(ctx, id, owner); err != nil {
			return err
		}
	}
	if s.history == nil {
		return ErrHistoryDisabled
	}
	recID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	if err := s.history.DeleteHistory(ctx, recID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete history: %w", err)
	}
	s.logger.Info().Str("history_id", id).Msg("intake.history.deleted")
	return nil
}

// visible reports whether a resource owned by recOwner may be seen by caller.
// Callers without an identity see everything.
func visible(recOwner, caller *uuid.UUID) bool {
	if caller == nil {
		return true
	}
	return recOwner != nil && *recOwner == *caller
}

func detectedMatches(ext string, m *mimetype.MIME) bool {
	for _, want := range allowedTypes[ext] {
		if m.Is(want) {
			return true
		}
	}
	// legacy .doc is an OLE container and .docx a zip, neither always sniffed precisely
	switch ext {
	case ".doc":
		return m.Is("application/x-ole-storage")
	case ".docx":
		return m.Is("application/zip")
	}
	return false
}
