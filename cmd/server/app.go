package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pathlight/pathlight-api/internal/config"
	"github.com/pathlight/pathlight-api/internal/generation"
	"github.com/pathlight/pathlight-api/internal/platform/gemini"
	"github.com/pathlight/pathlight-api/internal/platform/postgres"
	"github.com/pathlight/pathlight-api/internal/platform/rediscache"
	"github.com/pathlight/pathlight-api/internal/progress"
	"github.com/pathlight/pathlight-api/internal/service"
	"github.com/pathlight/pathlight-api/internal/store"
	"github.com/pathlight/pathlight-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	taskStore     store.TaskStore
	contentStore  store.ContentStore
	progressStore store.ProgressStore

	// Generation stack
	generator generation.Generator
	planCache *rediscache.PlanCache

	// Service interfaces
	pathService     service.PathService
	taskService     service.TaskService
	progressService service.ProgressService

	// Task handling
	taskRunner *task.Runner
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize stores
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.contentStore = postgres.NewPostgresContentStore(db, logger)
	app.progressStore = postgres.NewPostgresProgressStore(db, logger)

	// Initialize the content generator
	var err error
	app.generator, err = gemini.NewGeminiGenerator(
		ctx,
		logger.With("component", "generator"),
		cfg.Generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	logger.Info("Content generator initialized", "model", cfg.Generation.ModelName)

	// Initialize the optional plan cache
	var planCache generation.PlanCache
	if cfg.Cache.RedisURL != "" {
		app.planCache, err = rediscache.New(
			cfg.Cache.RedisURL,
			time.Duration(cfg.Cache.TTLSeconds)*time.Second,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize plan cache: %w", err)
		}
		planCache = app.planCache
		logger.Info("Plan cache initialized", "ttl_seconds", cfg.Cache.TTLSeconds)
	}

	// Build the workflow factory; content writes from the workflow run
	// through the saving service below.
	contentWriter := newTransactionalContentWriter(db, app.contentStore)
	workflowConfig := task.WorkflowConfig{
		FailureRateThreshold: cfg.Task.FailureRateThreshold,
	}
	taskFactory := task.NewPathGenerationTaskFactory(
		app.taskStore,
		app.generator,
		contentWriter,
		planCache,
		workflowConfig,
		logger,
	)

	// Initialize and start the task runner
	app.taskRunner = task.NewRunner(app.taskStore, task.RunnerConfig{
		WorkerCount:     cfg.Task.WorkerCount,
		QueueSize:       cfg.Task.QueueSize,
		TaskTimeout:     time.Duration(cfg.Task.TimeoutMinutes) * time.Minute,
		MonitorInterval: time.Duration(cfg.Task.RequeueIntervalSeconds) * time.Second,
	}, logger)
	app.taskRunner.RegisterFactory(taskFactory)
	if err := app.taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	// Initialize services
	app.pathService, err = service.NewPathService(app.taskStore, app.taskRunner, taskFactory, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create path service: %w", err)
	}

	app.taskService, err = service.NewTaskService(app.taskStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.progressService, err = service.NewProgressService(
		db,
		app.contentStore,
		app.progressStore,
		progress.NewEngine(logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create progress service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.planCache != nil {
		if err := app.planCache.Close(); err != nil {
			app.logger.Error("Error closing plan cache", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
