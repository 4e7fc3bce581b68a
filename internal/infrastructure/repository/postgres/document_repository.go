package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/tenant"
)

const documentColumns = `
id, organization_id, status, file_name, file_size, content_type, checksum,
storage_path, file_url, thumbnail_path, scan_status,
processing_attempts, processing_error_type, processing_error_message,
processing_next_retry_at, processing_started_at, processing_completed_at,
created_at, updated_at, deleted_at`

// DocumentRepository is the tenant-scoped document store. Every statement
// is constrained by the organization id taken from the tenant context; a
// call with no active tenant fails with an isolation-violation error before
// any SQL runs.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	orgID, err := tenant.Scope(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrNoTenantContext, "create document", err)
	}
	if doc.OrganizationID != orgID {
		return domain.WrapError(domain.ErrUnauthorized, "create document",
			fmt.Errorf("document organization %s does not match active tenant", doc.OrganizationID))
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, organization_id, status, file_name, file_size, content_type, checksum,
	storage_path, file_url, thumbnail_path, scan_status,
	processing_attempts, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, orgID, string(doc.Status), doc.FileName, doc.FileSize, doc.ContentType, doc.Checksum,
		doc.StoragePath, doc.FileURL, doc.ThumbnailPath, string(doc.ScanStatus),
		doc.ProcessingAttempts, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	orgID, err := tenant.Scope(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrNoTenantContext, "get document", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
`, id, orgID)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

// Supersede marks an ACTIVE document as replaced. Returns false when no
// active document matched within the tenant.
func (r *DocumentRepository) Supersede(ctx context.Context, id string) (bool, error) {
	orgID, err := tenant.Scope(ctx)
	if err != nil {
		return false, domain.WrapError(domain.ErrNoTenantContext, "supersede document", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, updated_at = $4
WHERE id = $1 AND organization_id = $2 AND status = $5 AND deleted_at IS NULL
`, id, orgID, string(domain.StatusSuperseded), time.Now().UTC(), string(domain.StatusActive))
	if err != nil {
		return false, fmt.Errorf("supersede document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("supersede rows affected: %w", err)
	}
	return rows > 0, nil
}

// RecordActivity appends one audit fact for a tenant-initiated transition.
// The event is bound to the active tenant; a mismatching organization on the
// event is rejected before any SQL runs.
func (r *DocumentRepository) RecordActivity(ctx context.Context, event *domain.ActivityEvent) error {
	orgID, err := tenant.Scope(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrNoTenantContext, "record activity", err)
	}
	if event.OrganizationID == "" {
		event.OrganizationID = orgID
	} else if event.OrganizationID != orgID {
		return domain.WrapError(domain.ErrUnauthorized, "record activity",
			fmt.Errorf("event organization %s does not match active tenant", event.OrganizationID))
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO activity_events (
	id, organization_id, entity_type, entity_id, action, category, summary,
	actor_id, actor_kind, previous_state, new_state, metadata, correlation_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		event.ID, event.OrganizationID, event.EntityType, event.EntityID,
		event.Action, event.Category, event.Summary, event.ActorID, string(event.ActorKind),
		nullableJSON(event.PreviousState), nullableJSON(event.NewState), nullableJSON(event.Metadata),
		event.CorrelationID, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, scanStatus, errorType string
	err := row.Scan(
		&doc.ID,
		&doc.OrganizationID,
		&status,
		&doc.FileName,
		&doc.FileSize,
		&doc.ContentType,
		&doc.Checksum,
		&doc.StoragePath,
		&doc.FileURL,
		&doc.ThumbnailPath,
		&scanStatus,
		&doc.ProcessingAttempts,
		&errorType,
		&doc.ProcessingErrorMessage,
		&doc.ProcessingNextRetryAt,
		&doc.ProcessingStartedAt,
		&doc.ProcessingCompletedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.ScanStatus = domain.ScanStatus(scanStatus)
	doc.ProcessingErrorType = domain.ProcessingErrorKind(errorType)
	return &doc, nil
}
