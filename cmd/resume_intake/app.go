package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jonathan/resume-intake/internal/config"
	"github.com/jonathan/resume-intake/internal/convert"
	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/extract"
	"github.com/jonathan/resume-intake/internal/intake"
	"github.com/jonathan/resume-intake/internal/llm"
	"github.com/jonathan/resume-intake/internal/parsing"
	"github.com/jonathan/resume-intake/internal/pipeline"
	"github.com/jonathan/resume-intake/internal/tasks"
)

// app is the fully wired pipeline shared by serve and extract
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *tasks.Registry
	store    db.HistoryStore
	oracle   llm.Oracle
	queue    *pipeline.Queue
	service  *intake.Service
}

// newApp wires every component from cfg. The history store is opened only
// when withHistory is set.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withHistory bool) (*app, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		registry: tasks.NewRegistry(
			tasks.WithRetention(cfg.Tasks.Retention),
			tasks.WithLogger(logger),
		),
	}

	if withHistory {
		store, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		a.store = store
	}

	if _, err := convert.LookupOffice(); err != nil {
		logger.Warn().Err(err).Msg("no LibreOffice binary found, .doc uploads will fail and office conversion is skipped")
	}

	runner := convert.NewExecRunner(logger)
	converters, err := convert.Build(cfg.Convert.Backends, runner, convert.ChromePrint)
	if err != nil {
		a.close()
		return nil, err
	}
	normalizer := convert.NewNormalizer(converters, cfg.Convert.Timeout, logger)
	extractor := extract.New(runner,
		extract.WithTempDir(cfg.WorkDir),
		extract.WithLogger(logger),
	)

	a.oracle, err = llm.NewOracle(ctx, llm.FromServiceConfig(cfg.Oracle), logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create oracle: %w", err)
	}

	procOpts := []pipeline.ProcessorOption{
		pipeline.WithParser(parsing.NewParser(logger)),
		pipeline.WithDPI(cfg.Extract.DPI),
		pipeline.WithLogger(logger),
	}
	if a.store != nil {
		procOpts = append(procOpts, pipeline.WithHistory(a.store))
	}
	processor := pipeline.NewProcessor(a.registry, normalizer, extractor, a.oracle, procOpts...)

	a.queue = pipeline.NewQueue(processor,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
		pipeline.WithQueueLogger(logger),
	)

	svcOpts := []intake.Option{
		intake.WithWorkDir(cfg.WorkDir),
		intake.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		intake.WithLogger(logger),
	}
	if a.store != nil {
		svcOpts = append(svcOpts, intake.WithHistory(a.store))
	}
	a.service = intake.NewService(a.registry, a.queue, svcOpts...)
	return a, nil
}

// Shutdown drains the queue within ctx and releases every resource
func (a *app) Shutdown(ctx context.Context) error {
	var errs []error
	if a.queue != nil {
		if err := a.queue.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue: %w", err))
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) close() error {
	var errs []error
	if a.oracle != nil {
		if err := a.oracle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("oracle: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history store: %w", err))
		}
	}
	return errors.Join(errs...)
}
