package httpadapter

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// ReadinessChecker reports whether a downstream dependency can serve
// traffic. database/sql's DB.PingContext satisfies it directly.
type ReadinessChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness. Liveness stays 200 while the
// process drains so orchestrators do not kill it mid-run; readiness flips to
// 503 as soon as shutdown starts or the database stops answering.
type HealthHandler struct {
	db           ReadinessChecker
	shuttingDown atomic.Bool
}

func NewHealthHandler(db ReadinessChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// MarkShuttingDown is called when graceful shutdown begins, before the
// listener stops accepting connections.
func (h *HealthHandler) MarkShuttingDown() {
	h.shuttingDown.Store(true)
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"shutting_down": h.shuttingDown.Load(),
	})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
