package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the durable ingestion worker. The service label
// is bound at construction; the engine and dispatcher report through the
// observer interfaces in the usecase package.
type WorkerMetrics struct {
	registry *prometheus.Registry

	runTotal         *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runInFlight      prometheus.Gauge
	stepTotal        *prometheus.CounterVec
	retriesScheduled prometheus.Counter
	retryDispatched  prometheus.Counter
	infectedTotal    prometheus.Counter
	queueLag         prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_runs_total",
			Help:        "Total completed ingestion runs by outcome.",
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_run_duration_seconds",
			Help:        "Ingestion run duration in seconds by outcome.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_runs_in_flight",
			Help:        "Number of in-flight ingestion runs.",
			ConstLabels: serviceLabel,
		},
	)
	stepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_steps_total",
			Help:        "Total executed workflow steps by step name and result.",
			ConstLabels: serviceLabel,
		},
		[]string{"step", "result"},
	)
	retriesScheduled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_retries_scheduled_total",
			Help:        "Total transient failures that scheduled a retry.",
			ConstLabels: serviceLabel,
		},
	)
	retryDispatched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_retries_dispatched_total",
			Help:        "Total due retries republished to the queue.",
			ConstLabels: serviceLabel,
		},
	)
	infectedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "ingest_infected_total",
			Help:        "Total uploads quarantined by the malware gate.",
			ConstLabels: serviceLabel,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "hestami",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between run creation and processing start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: serviceLabel,
		},
	)

	registry.MustRegister(
		runTotal,
		runDuration,
		runInFlight,
		stepTotal,
		retriesScheduled,
		retryDispatched,
		infectedTotal,
		queueLag,
	)

	return &WorkerMetrics{
		registry:         registry,
		runTotal:         runTotal,
		runDuration:      runDuration,
		runInFlight:      runInFlight,
		stepTotal:        stepTotal,
		retriesScheduled: retriesScheduled,
		retryDispatched:  retryDispatched,
		infectedTotal:    infectedTotal,
		queueLag:         queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(duration time.Duration, err error) {
	m.runInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	m.runTotal.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordStep(step, result string) {
	if result == "" {
		result = "unknown"
	}
	m.stepTotal.WithLabelValues(step, result).Inc()
}

func (m *WorkerMetrics) RecordRetryScheduled() {
	m.retriesScheduled.Inc()
}

func (m *WorkerMetrics) RecordRetryDispatched(count int) {
	if count <= 0 {
		return
	}
	m.retryDispatched.Add(float64(count))
}

func (m *WorkerMetrics) RecordInfected() {
	m.infectedTotal.Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
