package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/tenant"
)

// DocumentService covers the tenant-facing document operations: registering
// a pending upload, reading state, and superseding with a newer version.
// Everything here runs inside an active tenant context; the repository
// rejects calls without one.
type DocumentService struct {
	repo    ports.DocumentRepository
	storage ports.BlobStorage
	logger  *slog.Logger

	now func() time.Time
}

func NewDocumentService(repo ports.DocumentRepository, storage ports.BlobStorage, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		repo:    repo,
		storage: storage,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterUpload stages the incoming file and creates the PENDING_UPLOAD
// row the ingestion workflow later picks up via the upload-complete hook.
func (s *DocumentService) RegisterUpload(
	ctx context.Context,
	orgID, filename, contentType string,
	size int64,
	body io.Reader,
) (*domain.Document, error) {
	id := uuid.NewString()
	stagedKey := fmt.Sprintf("staging/%s_%s", id, sanitizeFilename(filename))
	now := s.now()

	if err := s.storage.Save(ctx, stagedKey, body); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	doc := &domain.Document{
		ID:             id,
		OrganizationID: orgID,
		Status:         domain.StatusPendingUpload,
		FileName:       filename,
		FileSize:       size,
		ContentType:    contentType,
		StoragePath:    stagedKey,
		ScanStatus:     domain.ScanStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}
	return doc, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required"))
	}
	return s.repo.GetByID(ctx, id)
}

// Supersede marks an ACTIVE document as replaced by a newer version. An
// in-flight run for the old version finishes naturally; its output simply
// stops being current.
func (s *DocumentService) Supersede(ctx context.Context, id string) error {
	applied, err := s.repo.Supersede(ctx, id)
	if err != nil {
		return fmt.Errorf("supersede document: %w", err)
	}
	if !applied {
		return domain.WrapError(domain.ErrDocumentNotFound, "supersede document",
			fmt.Errorf("no active document %s", id))
	}

	// The transition already committed; an audit failure is logged and never
	// rolls it back, same as the engine's transitions.
	orgID, _ := tenant.FromContext(ctx)
	event := &domain.ActivityEvent{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		EntityType:     domain.EntityTypeDocument,
		EntityID:       id,
		Action:         domain.ActionDocumentSuperseded,
		Category:       domain.ActivityCategoryLifecycle,
		Summary:        "Document superseded by a newer version",
		ActorID:        orgID,
		ActorKind:      domain.ActorKindHuman,
		PreviousState:  domain.StatusSnapshot{Status: domain.StatusActive}.JSON(),
		NewState:       domain.StatusSnapshot{Status: domain.StatusSuperseded}.JSON(),
		CreatedAt:      s.now(),
	}
	if err := s.repo.RecordActivity(ctx, event); err != nil {
		s.logger.Error("activity_event_insert_failed",
			"document_id", id,
			"action", domain.ActionDocumentSuperseded,
			"error", err,
		)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	// filepath.Base collapses empty and dot-only paths to "." or "..".
	if base == "." || base == ".." {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
