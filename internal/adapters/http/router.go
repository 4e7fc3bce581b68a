package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/config"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/observability/metrics"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/tenant"
)

// DocumentAPI is the tenant-facing document surface consumed by the router.
type DocumentAPI interface {
	RegisterUpload(ctx context.Context, orgID, filename, contentType string, size int64, body io.Reader) (*domain.Document, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Supersede(ctx context.Context, id string) error
}

// Router wires the ingestion HTTP surface: the upload-complete webhook,
// tenant document routes, the privileged admin listing and the bootstrap
// membership read. Tenant routes establish the tenant context from the
// X-Organization-Id header; admin and bootstrap routes deliberately run
// without one and go through privileged services.
type Router struct {
	hooks     ports.UploadHookService
	documents DocumentAPI
	admin     ports.AdminDocumentLister
	bootstrap ports.TenantBootstrap
	health    *HealthHandler
	metrics   *metrics.HTTPServerMetrics
	cfg       config.Config
}

func NewRouter(
	hooks ports.UploadHookService,
	documents DocumentAPI,
	admin ports.AdminDocumentLister,
	bootstrap ports.TenantBootstrap,
	health *HealthHandler,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		hooks:     hooks,
		documents: documents,
		admin:     admin,
		bootstrap: bootstrap,
		health:    health,
		metrics:   httpMetrics,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/hooks/upload-complete", rt.uploadComplete)
	mux.HandleFunc("/v1/documents", rt.registerUpload)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	mux.HandleFunc("/v1/admin/documents", rt.adminDocuments)
	mux.HandleFunc("/v1/users/", rt.userMemberships)
	mux.HandleFunc("/health/live", rt.health.Live)
	mux.HandleFunc("/health/ready", rt.health.Ready)
	mux.Handle("/metrics", rt.metrics.Handler())

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrentRequests, backpressureWait(rt.cfg))
	handler = rt.metrics.Middleware("api", handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

// uploadComplete acknowledges the storage callback immediately. The
// workflow outcome is observable only via document status and the activity
// trail; non-matching event types are acknowledged and ignored.
func (rt *Router) uploadComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var hook domain.UploadHook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ack, err := rt.hooks.Accept(r.Context(), hook)
	if err != nil {
		writeError(w, err)
		return
	}
	disposition := ack.Status
	if ack.Duplicate {
		disposition = "duplicate"
	}
	rt.metrics.RecordUploadHook("api", disposition)
	writeJSON(w, http.StatusOK, ack)
}

func (rt *Router) registerUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	orgID, ok := rt.tenantFromRequest(w, r)
	if !ok {
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.documents.RegisterUpload(
		tenant.WithTenant(r.Context(), orgID),
		orgID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")

	if id, ok := strings.CutSuffix(rest, "/supersede"); ok && id != "" && !strings.Contains(id, "/") {
		rt.supersedeDocument(w, r, id)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	rt.getDocumentByID(w, r, rest)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	orgID, ok := rt.tenantFromRequest(w, r)
	if !ok {
		return
	}

	doc, err := rt.documents.GetByID(tenant.WithTenant(r.Context(), orgID), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) supersedeDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	orgID, ok := rt.tenantFromRequest(w, r)
	if !ok {
		return
	}

	if err := rt.documents.Supersede(tenant.WithTenant(r.Context(), orgID), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "superseded"})
}

func (rt *Router) adminDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query()
	filter := ports.AdminDocumentFilter{
		View:    ports.AdminView(query.Get("view")),
		Status:  domain.DocumentStatus(query.Get("status")),
		Page:    intQueryParam(query.Get("page"), 1),
		PerPage: intQueryParam(query.Get("per_page"), 0),
	}

	rows, err := rt.admin.ListDocuments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.metrics.RecordAdminListing("api", string(filter.View))
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": rows,
		"page":      filter.Page,
	})
}

func (rt *Router) userMemberships(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, ok := strings.CutSuffix(rest, "/memberships")
	if !ok || userID == "" || strings.Contains(userID, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	memberships, profile, err := rt.bootstrap.ResolveUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memberships":   memberships,
		"staff_profile": profile,
	})
}

func (rt *Router) tenantFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := strings.TrimSpace(r.Header.Get("X-Organization-Id"))
	if orgID == "" {
		rt.metrics.RecordTenantRejection("api")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "organization header is required"})
		return "", false
	}
	return orgID, true
}

func intQueryParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Infrastructure detail stays in the log; tenants get a generic body.
		slog.Error("request_failed", "status", status, "error", err)
		message = "internal error"
		if status == http.StatusServiceUnavailable {
			message = "service temporarily unavailable"
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}
