package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

// RetryObserver receives the dispatched count for each batch.
type RetryObserver interface {
	RecordRetryDispatched(count int)
}

// RetryDispatcher periodically re-enqueues runs whose documents are parked
// in PROCESSING_FAILED with a due transient retry, and sweeps runs stranded
// mid-step by a dead executor back onto the queue. It runs inside the
// worker process and is the only source of delayed redelivery.
type RetryDispatcher struct {
	runs     ports.WorkflowStore
	queue    ports.MessageQueue
	logger   *slog.Logger
	observer RetryObserver

	interval    time.Duration
	maxAttempts int
	batchSize   int
	staleAfter  time.Duration

	now func() time.Time
}

func NewRetryDispatcher(
	runs ports.WorkflowStore,
	queue ports.MessageQueue,
	logger *slog.Logger,
	interval time.Duration,
	maxAttempts, batchSize int,
	staleAfter time.Duration,
) *RetryDispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &RetryDispatcher{
		runs:        runs,
		queue:       queue,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		staleAfter:  staleAfter,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver wires metrics instrumentation. Optional.
func (d *RetryDispatcher) SetObserver(observer RetryObserver) {
	d.observer = observer
}

// Run blocks until ctx is cancelled.
func (d *RetryDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchDue(ctx)
			d.DispatchStale(ctx)
		}
	}
}

// DispatchDue publishes one batch of due run keys. Publish failures are
// logged and retried on the next tick; nothing is lost because dispatch
// reads from durable state.
func (d *RetryDispatcher) DispatchDue(ctx context.Context) int {
	keys, err := d.runs.ListDueRetryRuns(ctx, d.now(), d.maxAttempts, d.batchSize)
	if err != nil {
		d.logger.Error("retry_dispatch_list_failed", "error", err)
		return 0
	}

	dispatched := 0
	for _, key := range keys {
		if err := d.queue.PublishRunEnqueued(ctx, key); err != nil {
			d.logger.Error("retry_dispatch_publish_failed", "run_key", key, "error", err)
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		d.logger.Info("retry_dispatch", "dispatched", dispatched)
	}
	if d.observer != nil {
		d.observer.RecordRetryDispatched(dispatched)
	}
	return dispatched
}

// DispatchStale republishes runs still marked running whose row has not
// moved within the stale window. The queue delivers at most once, so a run
// stranded by an executor crash stays invisible until someone republishes
// its key; step replay makes the redelivery safe.
func (d *RetryDispatcher) DispatchStale(ctx context.Context) int {
	cutoff := d.now().Add(-d.staleAfter)
	keys, err := d.runs.ListStaleRunningRuns(ctx, cutoff, d.batchSize)
	if err != nil {
		d.logger.Error("stale_run_list_failed", "error", err)
		return 0
	}

	dispatched := 0
	for _, key := range keys {
		if err := d.queue.PublishRunEnqueued(ctx, key); err != nil {
			d.logger.Error("stale_run_publish_failed", "run_key", key, "error", err)
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		d.logger.Warn("stale_run_dispatch", "dispatched", dispatched, "stale_after", d.staleAfter)
	}
	return dispatched
}
