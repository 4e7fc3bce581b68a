package ports

import (
	"context"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
)

// HookAck is the immediate answer to an upload-complete callback. The
// workflow outcome is observable only through the document status and the
// activity trail, never through this acknowledgment.
type HookAck struct {
	Status    string `json:"status"`
	RunKey    string `json:"run_key,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// UploadHookService is the inbound contract for the upload-complete webhook.
type UploadHookService interface {
	Accept(ctx context.Context, hook domain.UploadHook) (HookAck, error)
}

// RunProcessor is the inbound contract for the durable workflow engine.
type RunProcessor interface {
	ProcessRun(ctx context.Context, runKey string) error
}

// DocumentReader is the tenant-scoped read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// AdminView names a canned admin filter over document state.
type AdminView string

const (
	AdminViewProcessing     AdminView = "processing"
	AdminViewInfected       AdminView = "infected"
	AdminViewHistory        AdminView = "history"
	AdminViewAutoRetry      AdminView = "auto-retry"
	AdminViewNeedsAttention AdminView = "needs-attention"
)

// AdminDocumentFilter selects documents for the admin listing. Either View
// or Status is set; View wins when both are present.
type AdminDocumentFilter struct {
	View    AdminView
	Status  domain.DocumentStatus
	Page    int
	PerPage int
}

// AdminDocumentRow is one admin listing row, joined with the owning
// organization's name.
type AdminDocumentRow struct {
	Document         domain.Document `json:"document"`
	OrganizationName string          `json:"organization_name"`
}

// AdminDocumentLister is the privileged, cross-tenant admin listing.
type AdminDocumentLister interface {
	ListDocuments(ctx context.Context, filter AdminDocumentFilter) ([]AdminDocumentRow, error)
}

// TenantBootstrap resolves a user's memberships and staff profile before a
// tenant context exists.
type TenantBootstrap interface {
	ResolveUser(ctx context.Context, userID string) ([]domain.OrganizationMembership, *domain.StaffProfile, error)
}
