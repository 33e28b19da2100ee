// Package pipeline drives submitted documents through conversion, extraction,
// the oracle call and parsing, recording every step in the task registry.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/resume-intake/internal/convert"
	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/extract"
	"github.com/jonathan/resume-intake/internal/llm"
	"github.com/jonathan/resume-intake/internal/parsing"
	"github.com/jonathan/resume-intake/internal/tasks"
	"github.com/jonathan/resume-intake/internal/types"
)

// Normalizer converts documents to PDF for visual extraction
type Normalizer interface {
	Normalize(ctx context.Context, path, ext string, strategy tasks.Strategy) (convert.Result, error)
}

// ContentExtractor produces page images or marked-up text
type ContentExtractor interface {
	Rasterize(ctx context.Context, path string, dpi int, onPage extract.ProgressFunc) ([]extract.Page, error)
	ExtractText(ctx context.Context, path, ext string) (extract.Document, error)
}

// ResultParser turns the oracle answer into a profile
type ResultParser interface {
	Parse(raw string) (*types.Profile, error)
}

// HistoryWriter persists the outcome of a finished task
type HistoryWriter interface {
	SaveHistory(ctx context.Context, rec *db.HistoryRecord) error
}

// Processor runs one task at a time through the extraction state machine.
// It is safe for concurrent use by several workers.
type Processor struct {
	registry   *tasks.Registry
	normalizer Normalizer
	extractor  ContentExtractor
	oracle     llm.Oracle
	parser     ResultParser
	history    HistoryWriter
	dpi        int
	logger     zerolog.Logger
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithHistory sets where terminal outcomes are persisted
func WithHistory(h HistoryWriter) ProcessorOption {
	return func(p *Processor) { p.history = h }
}

// WithParser replaces the default result parser
func WithParser(rp ResultParser) ProcessorOption {
	return func(p *Processor) { p.parser = rp }
}

// WithDPI sets the requested rasterization resolution
func WithDPI(dpi int) ProcessorOption {
	return func(p *Processor) {
		if dpi > 0 {
			p.dpi = dpi
		}
	}
}

// WithLogger sets the processor logger
func WithLogger(l zerolog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor wires the pipeline stages together
func NewProcessor(registry *tasks.Registry, normalizer Normalizer, extractor ContentExtractor, oracle llm.Oracle, opts ...ProcessorOption) *Processor {
	p := &Processor{
		registry:   registry,
		normalizer: normalizer,
		extractor:  extractor,
		oracle:     oracle,
		dpi:        extract.DefaultDPI,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.parser == nil {
		p.parser = parsing.NewParser(p.logger)
	}
	return p
}

// run carries the per-task state through the stages
type run struct {
	id        string
	meta      tasks.Metadata
	input     string
	converted string
	method    tasks.Strategy
	logger    zerolog.Logger
}

// Process drives the task to a terminal state. It never panics and never
// returns an error: every failure ends up on the task record.
func (p *Processor) Process(ctx context.Context, id string) {
	task, err := p.registry.Get(id)
	if err != nil {
		p.logger.Error().Str("task_id", id).Err(err).Msg("pipeline.task.missing")
		return
	}

	r := &run{
		id:     id,
		meta:   task.Metadata,
		input:  task.Resources.InputPath,
		method: task.Metadata.Strategy,
		logger: p.logger.With().Str("task_id", id).Str("filename", task.Metadata.Filename).Logger(),
	}
	if r.method == "" {
		r.method = tasks.StrategyVisual
	}

	start := time.Now()
	defer p.release(r)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("pipeline.panic")
			p.finish(r, nil, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if err := p.registry.Update(id, func(t *tasks.Task) {
		t.Status = tasks.StatusProcessing
		t.Method = r.method
	}); err != nil {
		r.logger.Error().Err(err).Msg("pipeline.task.start_failed")
		return
	}
	r.logger.Info().Str("strategy", string(r.method)).Str("ext", r.meta.Extension).Msg("pipeline.start")

	profile, err := p.execute(ctx, r)
	p.finish(r, profile, err)
	r.logger.Info().Dur("elapsed", time.Since(start)).Bool("ok", err == nil).Msg("pipeline.done")
}

// execute walks conversion, extraction and parsing, returning the profile or
// the terminal error.
func (p *Processor) execute(ctx context.Context, r *run) (*types.Profile, error) {
	visualPath := r.input

	if r.method == tasks.StrategyVisual && r.meta.Extension != ".pdf" {
		p.enter(r, tasks.StageConversion)
		res, err := p.normalizer.Normalize(ctx, r.input, r.meta.Extension, r.method)
		if err != nil {
			return nil, err
		}
		if res.Converted() {
			r.converted = res.Path
			visualPath = res.Path
			_ = p.registry.Update(r.id, func(t *tasks.Task) { t.Resources.ConvertedPath = res.Path })
		}
		if res.Degraded {
			r.logger.Warn().Int("attempts", len(res.Failures)).Msg("pipeline.conversion.degraded")
			p.switchToTextual(r)
		}
		p.advance(r, 100)
	}

	var raw string
	var rows int
	if r.method == tasks.StrategyVisual {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		answer, err := p.visual(ctx, r, visualPath)
		if err == nil {
			raw = answer
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn().Err(err).Msg("pipeline.visual.fallback")
			p.switchToTextual(r)
		}
	}

	if r.method == tasks.StrategyTextual {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		answer, markers, err := p.textual(ctx, r)
		if err != nil {
			return nil, err
		}
		raw, rows = answer, markers
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.enter(r, tasks.StageParsing)
	profile, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	p.advance(r, 100)

	if r.method == tasks.StrategyTextual && rows > 0 && len(profile.ExperienceData) != rows {
		r.logger.Warn().
			Int("row_markers", rows).
			Int("experience_entries", len(profile.ExperienceData)).
			Msg("pipeline.rows.mismatch")
	}
	return profile, nil
}

// visual rasterizes every page and asks the oracle to read the images
func (p *Processor) visual(ctx context.Context, r *run, path string) (string, error) {
	p.enter(r, tasks.StageVisualExtraction)

	pages, err := p.extractor.Rasterize(ctx, path, p.dpi, func(done, total int) {
		if total > 0 {
			p.advance(r, done*50/total)
		}
	})
	if err != nil {
		return "", err
	}
	r.logger.Debug().Int("pages", len(pages)).Msg("pipeline.visual.rasterized")
	p.advance(r, 60)

	answer, err := p.oracle.Extract(ctx, llm.Content{Mode: tasks.StrategyVisual, Pages: pages})
	if err != nil {
		return "", err
	}
	p.advance(r, 100)
	return answer, nil
}

// textual reads the original upload and asks the oracle to read the text
func (p *Processor) textual(ctx context.Context, r *run) (string, int, error) {
	p.enter(r, tasks.StageTextExtraction)

	doc, err := p.extractor.ExtractText(ctx, r.input, r.meta.Extension)
	if err != nil {
		return "", 0, err
	}
	r.logger.Debug().Int("chars", len(doc.Text)).Int("row_markers", doc.RowMarkers).Int("tables", doc.Tables).Msg("pipeline.textual.extracted")
	p.advance(r, 40)

	answer, err := p.oracle.Extract(ctx, llm.Content{Mode: tasks.StrategyTextual, Text: doc.Text, RowMarkers: doc.RowMarkers})
	if err != nil {
		return "", 0, err
	}
	p.advance(r, 100)
	return answer, doc.RowMarkers, nil
}

func (p *Processor) switchToTextual(r *run) {
	r.method = tasks.StrategyTextual
	_ = p.registry.Update(r.id, func(t *tasks.Task) { t.Method = tasks.StrategyTextual })
}

// enter moves the task to stage with progress reset
func (p *Processor) enter(r *run, stage tasks.Stage) {
	r.logger.Debug().Str("stage", string(stage)).Msg("pipeline.stage.enter")
	if err := p.registry.Update(r.id, func(t *tasks.Task) {
		t.Stage = stage
		t.Progress = 0
	}); err != nil {
		r.logger.Warn().Err(err).Str("stage", string(stage)).Msg("pipeline.stage.update_failed")
	}
}

// advance raises progress within the current stage; it never moves backwards
func (p *Processor) advance(r *run, progress int) {
	_ = p.registry.Update(r.id, func(t *tasks.Task) {
		if progress > t.Progress {
			t.Progress = progress
		}
	})
}

// finish records the terminal state and persists the outcome
func (p *Processor) finish(r *run, profile *types.Profile, procErr error) {
	var err error
	if procErr == nil && profile == nil {
		procErr = errors.New("no profile produced")
	}
	if procErr != nil {
		msg := procErr.Error()
		err = p.registry.Update(r.id, func(t *tasks.Task) {
			t.Status = tasks.StatusFailed
			t.Method = r.method
			t.Error = msg
			t.Result = nil
		})
		r.logger.Error().Err(procErr).Str("method", string(r.method)).Msg("pipeline.failed")
	} else {
		err = p.registry.Update(r.id, func(t *tasks.Task) {
			t.Status = tasks.StatusCompleted
			t.Stage = tasks.StageCompletion
			t.Progress = 100
			t.Method = r.method
			t.Result = profile
			t.Error = ""
		})
	}
	if err != nil {
		// already terminal, e.g. a panic after a recorded outcome
		r.logger.Warn().Err(err).Msg("pipeline.finish.update_failed")
		return
	}
	p.persist(r, profile, procErr)
}

func (p *Processor) persist(r *run, profile *types.Profile, procErr error) {
	if p.history == nil {
		return
	}
	rec := historyRecord(r, profile, procErr)

	// detached from the task context so shutdown does not drop the write
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.history.SaveHistory(ctx, rec); err != nil {
		perr := &PersistenceError{TaskID: r.id, Cause: err}
		r.logger.Error().Err(perr).Msg("pipeline.persist.failed")
		return
	}
	r.logger.Debug().Str("history_id", rec.ID.String()).Msg("pipeline.persisted")
}

func historyRecord(r *run, profile *types.Profile, procErr error) *db.HistoryRecord {
	rec := &db.HistoryRecord{
		TaskID:   r.id,
		Filename: r.meta.Filename,
		FileSize: r.meta.Size,
		FileType: r.meta.Extension,
		Method:   string(r.method),
		OwnerID:  r.meta.OwnerID,
		Checksum: r.meta.Checksum,
		Profile:  json.RawMessage(`{}`),
	}
	if procErr != nil {
		rec.Status = db.StatusFailed
		rec.ErrorMessage = procErr.Error()
		return rec
	}
	rec.Status = db.StatusCompleted
	if data, err := json.Marshal(profile); err == nil {
		rec.Profile = data
	}
	return rec
}

// release removes the upload and any converted derivative
func (p *Processor) release(r *run) {
	for _, path := range []string{r.input, r.converted} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("path", path).Msg("pipeline.cleanup.failed")
		}
	}
}
