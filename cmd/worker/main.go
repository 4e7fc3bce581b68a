package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/bootstrap"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/config"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Scanner.EnsureDefinitions(ctx); err != nil {
		logger.Error("scanner_definitions_unavailable", "error", err)
		os.Exit(1)
	}
	go app.Scanner.StartRefresher(ctx, time.Duration(cfg.ScanRefreshIntervalHours)*time.Hour)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.WorkerMetrics.Handler())
		mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux}
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()

	go app.Retries.Run(ctx)

	processingTimeout := time.Duration(cfg.ProcessingTimeoutSeconds) * time.Second
	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRunEnqueued(ctx, func(handlerCtx context.Context, runKey string) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, processingTimeout)
		defer cancel()

		app.WorkerMetrics.StartRun()
		start := time.Now()
		runErr := app.Engine.ProcessRun(runCtx, runKey)
		app.WorkerMetrics.FinishRun(time.Since(start), runErr)
		return runErr
	})
	if err != nil {
		logger.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
