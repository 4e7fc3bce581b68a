package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	hooksTotal          *prometheus.CounterVec
	adminListingsTotal  *prometheus.CounterVec
	tenantRejectedTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hestami",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hestami",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hestami",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	hooksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hestami",
			Subsystem: "ingest",
			Name:      "upload_hooks_total",
			Help:      "Total upload-complete hooks by disposition.",
		},
		[]string{"service", "disposition"},
	)
	adminListingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hestami",
			Subsystem: "admin",
			Name:      "document_listings_total",
			Help:      "Total admin document listings by view.",
		},
		[]string{"service", "view"},
	)
	tenantRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hestami",
			Subsystem: "tenant",
			Name:      "rejected_requests_total",
			Help:      "Total requests rejected for a missing or wrong tenant.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		hooksTotal,
		adminListingsTotal,
		tenantRejectedTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		hooksTotal:          hooksTotal,
		adminListingsTotal:  adminListingsTotal,
		tenantRejectedTotal: tenantRejectedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses identifier path segments so label cardinality
// stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		if strings.HasSuffix(path, "/supersede") {
			return "/v1/documents/{document_id}/supersede"
		}
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/users/"):
		return "/v1/users/{user_id}/memberships"
	default:
		return path
	}
}

// RecordUploadHook counts hook dispositions: accepted, duplicate or ignored.
func (m *HTTPServerMetrics) RecordUploadHook(service, disposition string) {
	if disposition == "" {
		disposition = "unknown"
	}
	m.hooksTotal.WithLabelValues(service, disposition).Inc()
}

func (m *HTTPServerMetrics) RecordAdminListing(service, view string) {
	if view == "" {
		view = "all"
	}
	m.adminListingsTotal.WithLabelValues(service, view).Inc()
}

func (m *HTTPServerMetrics) RecordTenantRejection(service string) {
	m.tenantRejectedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
