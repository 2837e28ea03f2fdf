package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/PPS-H/Invoice-manager-backend/internal/config"
	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
	"github.com/PPS-H/Invoice-manager-backend/internal/extraction"
	"github.com/PPS-H/Invoice-manager-backend/internal/platform/gemini"
	"github.com/PPS-H/Invoice-manager-backend/internal/platform/postgres"
	"github.com/PPS-H/Invoice-manager-backend/internal/service"
	"github.com/PPS-H/Invoice-manager-backend/internal/service/auth"
	"github.com/PPS-H/Invoice-manager-backend/internal/store"
	"github.com/PPS-H/Invoice-manager-backend/internal/task"
	"github.com/google/uuid"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	scanTaskStore store.ScanTaskStore

	jwtService  auth.JWTService
	scanService service.ScanService
	sweeper     *service.RetentionSweeper

	runner     *task.Runner
	jobFactory *task.ScanJobFactory
}

// newApplication creates a new application instance with all dependencies
// initialized and the background workers started.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.scanTaskStore = postgres.NewPostgresScanTaskStore(db)

	var extractor extraction.Extractor
	if cfg.LLM.GeminiAPIKey == "" {
		logger.Warn("no Gemini API key configured, using mock invoice extractor")
		extractor = &gemini.MockExtractor{}
	} else {
		extractor, err = gemini.NewExtractor(
			ctx,
			logger.With("component", "invoice_extractor"),
			cfg.LLM,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize invoice extractor: %w", err)
		}
		logger.Info("Invoice extractor initialized", "model", cfg.LLM.ModelName)
	}

	sink := postgres.NewPostgresInvoiceSink(db, logger)

	// The mailbox provider integration is deployed separately; without one
	// configured, scans complete with zero messages.
	fetcher := &unconfiguredFetcher{logger: logger}
	logger.Warn("no mailbox provider configured, scans will process zero messages")

	app.jobFactory = task.NewScanJobFactory(fetcher, extractor, sink, logger)

	reporter := service.NewStatusReporter(app.scanTaskStore, logger)

	app.runner = task.NewRunner(reporter, task.RunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
		StaleJobAge: time.Duration(cfg.Task.StaleJobAgeMinutes) * time.Minute,
	}, logger)

	if err := app.runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start job runner: %w", err)
	}

	app.scanService, err = service.NewScanService(
		app.scanTaskStore,
		app.runner,
		app.jobFactory,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan service: %w", err)
	}

	app.sweeper, err = service.NewRetentionSweeper(
		app.scanTaskStore,
		logger,
		time.Duration(cfg.Retention.Hours)*time.Hour,
		time.Duration(cfg.Retention.SweepIntervalMinutes)*time.Minute,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retention sweeper: %w", err)
	}
	app.sweeper.Start()

	if err := app.recoverInterruptedScans(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover interrupted scans: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// recoverInterruptedScans requeues jobs for task records left non-terminal
// by a previous process. Rebuilt jobs reuse their task IDs, so progress
// reports keep flowing to the original rows.
func (app *application) recoverInterruptedScans(ctx context.Context) error {
	tasks, err := app.scanTaskStore.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("failed to list non-terminal tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	jobs := make([]task.Job, 0, len(tasks))
	for _, t := range tasks {
		job, err := app.jobFactory.JobFor(t)
		if err != nil {
			app.logger.Error("failed to rebuild job for interrupted task",
				"task_id", t.TaskID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	app.runner.Recover(jobs)
	app.logger.Info("interrupted scans requeued", "count", len(jobs))
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}

	if app.runner != nil {
		app.runner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}

// unconfiguredFetcher stands in for a mailbox provider client when none is
// configured. It returns no messages.
type unconfiguredFetcher struct {
	logger *slog.Logger
}

func (f *unconfiguredFetcher) FetchMessages(
	ctx context.Context,
	ownerID, targetID uuid.UUID,
	kind domain.ScanKind,
	window int,
) ([]extraction.EmailMessage, error) {
	f.logger.Warn("fetch requested with no mailbox provider configured",
		"owner_id", ownerID, "target_id", targetID)
	return nil, nil
}
