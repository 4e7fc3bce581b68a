package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/config"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/usecase"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/infrastructure/queue/nats"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/infrastructure/repository/postgres"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/infrastructure/resilience"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/infrastructure/scanner/clamav"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/infrastructure/storage/localfs"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/observability/metrics"
)

// App wires the ingestion components shared by the api and worker binaries.
// Both processes build the full graph; each uses the parts it serves.
type App struct {
	Config config.Config
	Logger *slog.Logger
	DB     *sql.DB

	Queue   ports.MessageQueue
	Engine  *usecase.IngestionEngine
	Retries *usecase.RetryDispatcher
	Scanner *clamav.Client

	Documents *usecase.DocumentService
	Admin     *usecase.AdminDocumentService
	Users     *usecase.UserBootstrapService

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, logger, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	documentRepo := postgres.NewDocumentRepository(db)
	workflowRepo := postgres.NewWorkflowRepository(db)
	gateway := postgres.NewSystemGateway(db)

	scanner := clamav.New(
		cfg.ClamAVURL,
		storage,
		logger,
		time.Duration(cfg.ScanDefinitionMaxAgeHours)*time.Hour,
		clamav.WithResilienceExecutor(executor),
		clamav.WithScanTimeout(time.Duration(cfg.ClamAVScanTimeoutSeconds)*time.Second),
	)

	engine := usecase.NewIngestionEngine(workflowRepo, gateway, scanner, storage, queue, logger, usecase.EngineConfig{
		MaxAttempts: cfg.IngestMaxAttempts,
		BackoffBase: cfg.IngestRetryBackoffBase,
		BackoffCap:  cfg.IngestRetryBackoffCap,
	})
	retries := usecase.NewRetryDispatcher(
		workflowRepo,
		queue,
		logger,
		cfg.RetryDispatchInterval,
		cfg.IngestMaxAttempts,
		cfg.RetryDispatchBatchSize,
		cfg.IngestStaleRunAfter,
	)

	workerMetrics := metrics.NewWorkerMetrics("worker")
	engine.SetObserver(workerMetrics)
	retries.SetObserver(workerMetrics)

	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,

		Queue:   queue,
		Engine:  engine,
		Retries: retries,
		Scanner: scanner,

		Documents: usecase.NewDocumentService(documentRepo, storage, logger),
		Admin:     usecase.NewAdminDocumentService(gateway, cfg.IngestMaxAttempts, cfg.AdminDefaultPageSize),
		Users:     usecase.NewUserBootstrapService(gateway),

		HTTPMetrics:   metrics.NewHTTPServerMetrics("api"),
		WorkerMetrics: workerMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
