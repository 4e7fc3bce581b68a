package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/hestami-ai/ai-home-maintenance-sub020/internal/adapters/http"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/bootstrap"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/config"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	health := httpadapter.NewHealthHandler(app.DB)
	router := httpadapter.NewRouter(
		app.Engine,
		app.Documents,
		app.Admin,
		app.Users,
		health,
		app.HTTPMetrics,
		cfg,
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	// Readiness flips first so load balancers stop routing new traffic
	// before in-flight requests drain.
	health.MarkShuttingDown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
