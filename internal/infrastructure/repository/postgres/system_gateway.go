package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

// SystemGateway is the privileged write gateway: the fixed set of
// operations that may touch tenant rows without an active tenant context.
// Each write is a single row-level statement with its state-machine
// precondition in the WHERE clause, so a replay after a crash matches zero
// rows instead of double-applying, and concurrent runs never contend beyond
// their own document row. Absence is reported as applied=false, never as an
// error. Callers are the workflow engine and trusted system hooks only.
type SystemGateway struct {
	db *sql.DB
}

func NewSystemGateway(db *sql.DB) *SystemGateway {
	return &SystemGateway{db: db}
}

func (g *SystemGateway) GetDocumentForProcessing(ctx context.Context, docID string) (*domain.Document, error) {
	row := g.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1 AND deleted_at IS NULL
`, docID)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load document for processing: %w", err)
	}
	return doc, nil
}

// MarkProcessing enters PROCESSING: records the start timestamp and
// increments the attempt counter. Precondition: PENDING_UPLOAD or
// PROCESSING_FAILED. Replays match zero rows and report applied=false.
func (g *SystemGateway) MarkProcessing(ctx context.Context, docID string, startedAt time.Time) (bool, error) {
	result, err := g.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
    processing_started_at = $3,
    processing_attempts = processing_attempts + 1,
    processing_error_type = '',
    processing_error_message = '',
    processing_next_retry_at = NULL,
    updated_at = $3
WHERE id = $1
  AND status IN ($4, $5)
  AND deleted_at IS NULL
`, docID, string(domain.StatusProcessing), startedAt.UTC(),
		string(domain.StatusPendingUpload), string(domain.StatusProcessingFailed))
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return oneRowApplied(result)
}

// MarkInfected is terminal: PROCESSING -> INFECTED, scan status recorded,
// never finalized and never retried.
func (g *SystemGateway) MarkInfected(ctx context.Context, docID string, signature string) (bool, error) {
	now := time.Now().UTC()
	result, err := g.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
    scan_status = $3,
    processing_error_message = $4,
    processing_next_retry_at = NULL,
    processing_completed_at = $5,
    updated_at = $5
WHERE id = $1 AND status = $6 AND deleted_at IS NULL
`, docID, string(domain.StatusInfected), string(domain.ScanStatusInfected),
		signature, now, string(domain.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("mark infected: %w", err)
	}
	return oneRowApplied(result)
}

// MarkProcessingFailed records the classified failure. nextRetryAt is set
// only for transient failures still under the attempt cap; a nil value
// means no further automatic retry.
func (g *SystemGateway) MarkProcessingFailed(
	ctx context.Context,
	docID string,
	kind domain.ProcessingErrorKind,
	message string,
	nextRetryAt *time.Time,
) (bool, error) {
	result, err := g.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
    processing_error_type = $3,
    processing_error_message = $4,
    processing_next_retry_at = $5,
    updated_at = $6
WHERE id = $1 AND status = $7 AND deleted_at IS NULL
`, docID, string(domain.StatusProcessingFailed), string(kind), message,
		nextRetryAt, time.Now().UTC(), string(domain.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("mark processing failed: %w", err)
	}
	return oneRowApplied(result)
}

// FinalizeDocument commits the full finalize metadata and moves the
// document to ACTIVE in one statement.
func (g *SystemGateway) FinalizeDocument(ctx context.Context, docID string, meta domain.FinalizeMetadata) (bool, error) {
	now := time.Now().UTC()
	result, err := g.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
    storage_path = $3,
    file_url = $4,
    checksum = $5,
    file_size = $6,
    thumbnail_path = $7,
    scan_status = $8,
    processing_error_type = '',
    processing_error_message = '',
    processing_next_retry_at = NULL,
    processing_completed_at = $9,
    updated_at = $9
WHERE id = $1 AND status = $10 AND deleted_at IS NULL
`, docID, string(domain.StatusActive), meta.StoragePath, meta.FileURL,
		meta.Checksum, meta.FileSize, meta.ThumbnailPath, string(domain.ScanStatusClean),
		now, string(domain.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("finalize document: %w", err)
	}
	return oneRowApplied(result)
}

// InsertActivityEvent appends one immutable audit fact on behalf of the
// tenant named in the event. Insert-only; there is no update or delete path.
func (g *SystemGateway) InsertActivityEvent(ctx context.Context, event *domain.ActivityEvent) error {
	_, err := g.db.ExecContext(ctx, `
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

// ListUserMemberships is the bootstrap read that runs before any tenant
// context exists. Default membership first, soft-deleted organizations
// excluded.
func (g *SystemGateway) ListUserMemberships(ctx context.Context, userID string) ([]domain.OrganizationMembership, error) {
	rows, err := g.db.QueryContext(ctx, `
SELECT m.organization_id, o.name, m.user_id, m.role, m.is_default, m.created_at
FROM organization_memberships m
JOIN organizations o ON o.id = m.organization_id
WHERE m.user_id = $1 AND o.deleted_at IS NULL
ORDER BY m.is_default DESC, m.created_at ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OrganizationMembership, 0)
	for rows.Next() {
		var m domain.OrganizationMembership
		if err := rows.Scan(&m.OrganizationID, &m.OrganizationName, &m.UserID, &m.Role, &m.IsDefault, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

// GetStaffProfile returns nil when the user has no staff profile; absence
// is a normal outcome for regular members.
func (g *SystemGateway) GetStaffProfile(ctx context.Context, userID string) (*domain.StaffProfile, error) {
	row := g.db.QueryRowContext(ctx, `
SELECT user_id, display_name, title, created_at
FROM staff_profiles
WHERE user_id = $1
`, userID)

	var p domain.StaffProfile
	var title sql.NullString
	err := row.Scan(&p.UserID, &p.DisplayName, &title, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan staff profile: %w", err)
	}
	p.Title = title.String
	return &p, nil
}

// ListDocumentsAdmin serves the operator listing across all tenants, joined
// with the owning organization name, newest first.
func (g *SystemGateway) ListDocumentsAdmin(ctx context.Context, filter ports.AdminDocumentFilter, maxAttempts int) ([]ports.AdminDocumentRow, error) {
	where, args := adminFilterPredicate(filter, maxAttempts)

	offset := (filter.Page - 1) * filter.PerPage
	args = append(args, filter.PerPage, offset)
	query := fmt.Sprintf(`
SELECT d.id, d.organization_id, d.status, d.file_name, d.file_size, d.content_type, d.checksum,
       d.storage_path, d.file_url, d.thumbnail_path, d.scan_status,
       d.processing_attempts, d.processing_error_type, d.processing_error_message,
       d.processing_next_retry_at, d.processing_started_at, d.processing_completed_at,
       d.created_at, d.updated_at, d.deleted_at,
       o.name
FROM documents d
JOIN organizations o ON o.id = d.organization_id
WHERE d.deleted_at IS NULL%s
ORDER BY d.created_at DESC
LIMIT $%d OFFSET $%d
`, where, len(args)-1, len(args))

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("admin list documents: %w", err)
	}
	defer rows.Close()

	out := make([]ports.AdminDocumentRow, 0)
	for rows.Next() {
		var doc domain.Document
		var status, scanStatus, errorType, orgName string
		err := rows.Scan(
			&doc.ID, &doc.OrganizationID, &status, &doc.FileName, &doc.FileSize, &doc.ContentType, &doc.Checksum,
			&doc.StoragePath, &doc.FileURL, &doc.ThumbnailPath, &scanStatus,
			&doc.ProcessingAttempts, &errorType, &doc.ProcessingErrorMessage,
			&doc.ProcessingNextRetryAt, &doc.ProcessingStartedAt, &doc.ProcessingCompletedAt,
			&doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt,
			&orgName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan admin document: %w", err)
		}
		doc.Status = domain.DocumentStatus(status)
		doc.ScanStatus = domain.ScanStatus(scanStatus)
		doc.ProcessingErrorType = domain.ProcessingErrorKind(errorType)
		out = append(out, ports.AdminDocumentRow{Document: doc, OrganizationName: orgName})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin documents: %w", err)
	}
	return out, nil
}

// adminFilterPredicate renders a named view into its status predicate.
// auto-retry: transient failures still under the attempt cap.
// needs-attention: terminal failures (permanent, or transient out of tries).
func adminFilterPredicate(filter ports.AdminDocumentFilter, maxAttempts int) (string, []interface{}) {
	switch filter.View {
	case ports.AdminViewProcessing:
		return " AND d.status = $1", []interface{}{string(domain.StatusProcessing)}
	case ports.AdminViewInfected:
		return " AND d.status = $1", []interface{}{string(domain.StatusInfected)}
	case ports.AdminViewHistory:
		return " AND d.status IN ($1, $2)", []interface{}{
			string(domain.StatusActive), string(domain.StatusSuperseded),
		}
	case ports.AdminViewAutoRetry:
		return " AND d.status = $1 AND d.processing_error_type = $2 AND d.processing_attempts < $3",
			[]interface{}{string(domain.StatusProcessingFailed), string(domain.ErrorKindTransient), maxAttempts}
	case ports.AdminViewNeedsAttention:
		return " AND d.status = $1 AND (d.processing_error_type = $2 OR d.processing_attempts >= $3)",
			[]interface{}{string(domain.StatusProcessingFailed), string(domain.ErrorKindPermanent), maxAttempts}
	}
	if filter.Status != "" {
		return " AND d.status = $1", []interface{}{string(filter.Status)}
	}
	return "", nil
}

func oneRowApplied(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}
