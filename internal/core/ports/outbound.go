package ports

import (
	"context"
	"io"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
)

// DocumentRepository is the tenant-scoped document store. Every method
// requires an active tenant context and fails with an isolation-violation
// error when none is bound.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Supersede(ctx context.Context, id string) (bool, error)
	// RecordActivity appends one audit fact for a tenant-initiated
	// transition. The event is bound to the active tenant.
	RecordActivity(ctx context.Context, event *domain.ActivityEvent) error
}

// WorkflowStore owns durable run state. It is tenant-agnostic: the engine
// is the component that performs privileged writes.
type WorkflowStore interface {
	// CreateRun inserts the run iff its key is new. created=false means a
	// run for this upload already exists and the trigger is a duplicate.
	CreateRun(ctx context.Context, run *domain.WorkflowRun) (created bool, err error)
	GetRun(ctx context.Context, runKey string) (*domain.WorkflowRun, error)
	// AdvanceStep commits the checkpoint and moves the run to the next step.
	AdvanceStep(ctx context.Context, runKey string, from, to domain.WorkflowStep, checkpoint []byte) (bool, error)
	CompleteRun(ctx context.Context, runKey string, result domain.RunResult) error
	FailRun(ctx context.Context, runKey string, cause string) error
	// ListDueRetryRuns returns run keys whose documents sit in
	// PROCESSING_FAILED with a TRANSIENT error, a due retry timestamp and
	// attempts below the cap.
	ListDueRetryRuns(ctx context.Context, now time.Time, maxAttempts, limit int) ([]string, error)
	// ListStaleRunningRuns returns keys of running runs untouched since the
	// cutoff and not parked for a scheduled retry. These are runs stranded
	// by an executor that died mid-step.
	ListStaleRunningRuns(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// SystemGateway is the privileged write gateway: the fixed, enumerable set
// of operations allowed to touch tenant rows without an active tenant
// context. Tenant ids travel as data, ownership is validated in SQL, and
// absence is reported as applied=false, never as an error. Callers are the
// workflow engine and trusted system hooks only.
type SystemGateway interface {
	GetDocumentForProcessing(ctx context.Context, docID string) (*domain.Document, error)
	MarkProcessing(ctx context.Context, docID string, startedAt time.Time) (applied bool, err error)
	MarkInfected(ctx context.Context, docID string, signature string) (applied bool, err error)
	MarkProcessingFailed(ctx context.Context, docID string, kind domain.ProcessingErrorKind, message string, nextRetryAt *time.Time) (applied bool, err error)
	FinalizeDocument(ctx context.Context, docID string, meta domain.FinalizeMetadata) (applied bool, err error)
	InsertActivityEvent(ctx context.Context, event *domain.ActivityEvent) error
	ListUserMemberships(ctx context.Context, userID string) ([]domain.OrganizationMembership, error)
	GetStaffProfile(ctx context.Context, userID string) (*domain.StaffProfile, error)
	ListDocumentsAdmin(ctx context.Context, filter AdminDocumentFilter, maxAttempts int) ([]AdminDocumentRow, error)
}

// MessageQueue hands run keys from the webhook acknowledger to the worker.
type MessageQueue interface {
	PublishRunEnqueued(ctx context.Context, runKey string) error
	SubscribeRunEnqueued(ctx context.Context, handler func(context.Context, string) error) error
}

// ScanVerdict is the malware gate's answer for one file.
type ScanVerdict struct {
	Status    domain.ScanStatus
	Signature string
}

// MalwareScanner checks a staged file against current virus definitions.
// Gate failures (engine unreachable, timeout) surface as temporary-kind
// errors so the engine schedules a retry.
type MalwareScanner interface {
	Scan(ctx context.Context, storagePath string) (ScanVerdict, error)
}

// BlobStorage holds staged and finalized document files.
type BlobStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Promote moves a staged object to its final location and returns the
	// final key, the SHA-256 checksum and the byte size.
	Promote(ctx context.Context, stagedKey, finalKey string) (checksum string, size int64, err error)
}
