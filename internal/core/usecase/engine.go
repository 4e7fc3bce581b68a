package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

// EngineConfig tunes retry behavior. The attempt cap and backoff window are
// deployment-configurable; defaults live in the config package.
type EngineConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// EngineObserver receives instrumentation signals from the workflow engine.
type EngineObserver interface {
	RecordStep(step, result string)
	RecordRetryScheduled()
	RecordInfected()
	ObserveQueueLag(lag time.Duration)
}

// IngestionEngine is the durable workflow executor. Accept runs on the API
// side and only records the run and enqueues it; ProcessRun runs on the
// worker and walks the document state machine step by step, committing a
// checkpoint after each durable effect. Every document mutation goes through
// the system gateway because the run executes outside any tenant request.
type IngestionEngine struct {
	runs     ports.WorkflowStore
	gateway  ports.SystemGateway
	scanner  ports.MalwareScanner
	storage  ports.BlobStorage
	queue    ports.MessageQueue
	logger   *slog.Logger
	cfg      EngineConfig
	observer EngineObserver

	now func() time.Time
}

func NewIngestionEngine(
	runs ports.WorkflowStore,
	gateway ports.SystemGateway,
	scanner ports.MalwareScanner,
	storage ports.BlobStorage,
	queue ports.MessageQueue,
	logger *slog.Logger,
	cfg EngineConfig,
) *IngestionEngine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Hour
	}
	return &IngestionEngine{
		runs:    runs,
		gateway: gateway,
		scanner: scanner,
		storage: storage,
		queue:   queue,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver wires metrics instrumentation. Optional; the engine works
// without one.
func (e *IngestionEngine) SetObserver(observer EngineObserver) {
	e.observer = observer
}

func (e *IngestionEngine) observeStep(step domain.WorkflowStep, result string) {
	if e.observer != nil {
		e.observer.RecordStep(string(step), result)
	}
}

// Accept handles an upload-complete callback. It answers immediately: the
// run is recorded under its deterministic key and handed to the queue, and
// the workflow outcome is only observable through document status and the
// activity trail. A duplicate delivery maps onto the existing run key and
// creates nothing.
func (e *IngestionEngine) Accept(ctx context.Context, hook domain.UploadHook) (ports.HookAck, error) {
	if hook.Type != domain.HookEventFinished {
		return ports.HookAck{Status: "ignored"}, nil
	}
	uploadID := strings.TrimSpace(hook.ID)
	if uploadID == "" {
		return ports.HookAck{}, domain.WrapError(domain.ErrInvalidInput, "accept upload hook", errors.New("upload id is required"))
	}
	docID := strings.TrimSpace(hook.MetaData["document_id"])
	orgID := strings.TrimSpace(hook.MetaData["organization_id"])
	if docID == "" || orgID == "" {
		return ports.HookAck{}, domain.WrapError(domain.ErrInvalidInput, "accept upload hook", errors.New("document_id and organization_id metadata are required"))
	}

	runKey := domain.RunKeyForUpload(uploadID)
	now := e.now()
	run := &domain.WorkflowRun{
		RunKey:         runKey,
		UploadID:       uploadID,
		DocumentID:     docID,
		OrganizationID: orgID,
		Step:           domain.StepBegin,
		Status:         domain.RunStatusRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := e.runs.CreateRun(ctx, run)
	if err != nil {
		return ports.HookAck{}, fmt.Errorf("create workflow run: %w", err)
	}

	// Publishing is idempotent relative to run state, so the duplicate path
	// publishes too: it covers a first delivery that crashed between the
	// insert and the publish.
	if err := e.queue.PublishRunEnqueued(ctx, runKey); err != nil {
		return ports.HookAck{}, fmt.Errorf("enqueue workflow run: %w", err)
	}

	return ports.HookAck{Status: "accepted", RunKey: runKey, Duplicate: !created}, nil
}

// ProcessRun resumes the run from its checkpointed step and drives it until
// it completes, fails terminally, or parks for a scheduled retry. Re-entry
// after a crash is safe: every step checks the persisted document status
// before re-applying its transition, and an already-applied transition is
// skipped.
func (e *IngestionEngine) ProcessRun(ctx context.Context, runKey string) error {
	run, err := e.runs.GetRun(ctx, runKey)
	if err != nil {
		return fmt.Errorf("load workflow run %s: %w", runKey, err)
	}
	if run == nil {
		e.logger.Warn("run_key_unknown", "run_key", runKey)
		return nil
	}
	if run.Status != domain.RunStatusRunning {
		return nil
	}

	if e.observer != nil && run.Step == domain.StepBegin {
		e.observer.ObserveQueueLag(e.now().Sub(run.CreatedAt))
	}

	for {
		var proceed bool
		switch run.Step {
		case domain.StepBegin:
			proceed, err = e.stepBegin(ctx, run)
		case domain.StepScan:
			proceed, err = e.stepScan(ctx, run)
		case domain.StepFinalize:
			proceed, err = e.stepFinalize(ctx, run)
		default:
			return fmt.Errorf("run %s: unknown step %q", run.RunKey, run.Step)
		}
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	}
}

// stepBegin moves the document into PROCESSING. Precondition:
// PENDING_UPLOAD or a retryable PROCESSING_FAILED. A document already in
// PROCESSING means the transition committed before a crash; the step is
// then a no-op and the run advances.
func (e *IngestionEngine) stepBegin(ctx context.Context, run *domain.WorkflowRun) (bool, error) {
	doc, err := e.gateway.GetDocumentForProcessing(ctx, run.DocumentID)
	if err != nil {
		return false, fmt.Errorf("run %s: load document: %w", run.RunKey, err)
	}
	if doc == nil {
		return false, e.failRunTerminal(ctx, run, "document row missing")
	}
	if doc.Status.Terminal() {
		return false, e.reconcileTerminal(ctx, run, doc)
	}

	applied, err := e.gateway.MarkProcessing(ctx, run.DocumentID, e.now())
	if err != nil {
		return false, fmt.Errorf("run %s: mark processing: %w", run.RunKey, err)
	}
	if applied {
		e.recordTransition(ctx, run, doc.Status, domain.StatusProcessing, doc.ProcessingAttempts+1,
			domain.ActionProcessingStarted, "Document processing started")
	}

	return e.advance(ctx, run, domain.StepBegin, domain.StepScan, nil)
}

// stepScan asks the malware gate for a verdict. Precondition: PROCESSING.
func (e *IngestionEngine) stepScan(ctx context.Context, run *domain.WorkflowRun) (bool, error) {
	doc, err := e.gateway.GetDocumentForProcessing(ctx, run.DocumentID)
	if err != nil {
		return false, fmt.Errorf("run %s: load document: %w", run.RunKey, err)
	}
	if doc == nil {
		return false, e.failRunTerminal(ctx, run, "document row missing")
	}
	if doc.Status.Terminal() {
		return false, e.reconcileTerminal(ctx, run, doc)
	}
	if doc.Status != domain.StatusProcessing {
		// Parked in PROCESSING_FAILED; the retry dispatcher re-enqueues it.
		return false, nil
	}

	verdict, err := e.scanner.Scan(ctx, doc.StoragePath)
	if err != nil {
		return false, e.failStep(ctx, run, doc, "malware scan", err)
	}

	if verdict.Status == domain.ScanStatusInfected {
		applied, err := e.gateway.MarkInfected(ctx, run.DocumentID, verdict.Signature)
		if err != nil {
			return false, fmt.Errorf("run %s: mark infected: %w", run.RunKey, err)
		}
		if applied {
			e.recordTransition(ctx, run, doc.Status, domain.StatusInfected, doc.ProcessingAttempts,
				domain.ActionMalwareDetected, fmt.Sprintf("Malware detected: %s", verdict.Signature))
		}
		if err := e.runs.CompleteRun(ctx, run.RunKey, domain.RunResultInfected); err != nil {
			return false, fmt.Errorf("run %s: complete run: %w", run.RunKey, err)
		}
		e.observeStep(domain.StepScan, "infected")
		if e.observer != nil {
			e.observer.RecordInfected()
		}
		return false, nil
	}

	checkpoint, err := json.Marshal(domain.ScanCheckpoint{
		Verdict:   domain.ScanStatusClean,
		Signature: verdict.Signature,
		ScannedAt: e.now(),
	})
	if err != nil {
		return false, fmt.Errorf("run %s: marshal scan checkpoint: %w", run.RunKey, err)
	}
	return e.advance(ctx, run, domain.StepScan, domain.StepFinalize, checkpoint)
}

// stepFinalize promotes the staged file, writes the full metadata in one
// gateway call and completes the run. Precondition: PROCESSING plus a clean
// scan checkpoint. An INFECTED verdict can never reach this step.
func (e *IngestionEngine) stepFinalize(ctx context.Context, run *domain.WorkflowRun) (bool, error) {
	doc, err := e.gateway.GetDocumentForProcessing(ctx, run.DocumentID)
	if err != nil {
		return false, fmt.Errorf("run %s: load document: %w", run.RunKey, err)
	}
	if doc == nil {
		return false, e.failRunTerminal(ctx, run, "document row missing")
	}
	if doc.Status.Terminal() {
		return false, e.reconcileTerminal(ctx, run, doc)
	}
	if doc.Status != domain.StatusProcessing {
		return false, nil
	}

	var cp domain.ScanCheckpoint
	if err := json.Unmarshal(run.Checkpoint, &cp); err != nil || cp.Verdict != domain.ScanStatusClean {
		return false, e.failRunTerminal(ctx, run, "finalize without clean scan checkpoint")
	}

	finalKey := finalStorageKey(doc)
	checksum, size, err := e.storage.Promote(ctx, doc.StoragePath, finalKey)
	if err != nil {
		return false, e.failStep(ctx, run, doc, "storage finalize", err)
	}

	meta := domain.FinalizeMetadata{
		StoragePath:   finalKey,
		FileURL:       "/files/" + finalKey,
		Checksum:      checksum,
		FileSize:      size,
		ThumbnailPath: doc.ThumbnailPath,
	}
	applied, err := e.gateway.FinalizeDocument(ctx, run.DocumentID, meta)
	if err != nil {
		return false, fmt.Errorf("run %s: finalize document: %w", run.RunKey, err)
	}
	if applied {
		e.recordTransition(ctx, run, doc.Status, domain.StatusActive, doc.ProcessingAttempts,
			domain.ActionProcessingFinished, "Document processing finished")
	}
	if err := e.runs.CompleteRun(ctx, run.RunKey, domain.RunResultActive); err != nil {
		return false, fmt.Errorf("run %s: complete run: %w", run.RunKey, err)
	}
	e.observeStep(domain.StepFinalize, "ok")
	return false, nil
}

// failStep classifies a step error and folds it into the document's
// processing fields. Transient failures below the attempt cap schedule a
// retry and rewind the run to the begin step; everything else is terminal
// for automatic processing and surfaced for manual attention.
func (e *IngestionEngine) failStep(ctx context.Context, run *domain.WorkflowRun, doc *domain.Document, operation string, stepErr error) error {
	kind := domain.ClassifyProcessingError(stepErr)
	message := fmt.Sprintf("%s: %v", operation, stepErr)
	e.observeStep(run.Step, "failed")

	var nextRetryAt *time.Time
	retryable := kind == domain.ErrorKindTransient && doc.ProcessingAttempts < e.cfg.MaxAttempts
	if retryable {
		at := e.now().Add(NextRetryDelay(doc.ProcessingAttempts, e.cfg.BackoffBase, e.cfg.BackoffCap))
		nextRetryAt = &at
	}

	applied, err := e.gateway.MarkProcessingFailed(ctx, run.DocumentID, kind, message, nextRetryAt)
	if err != nil {
		return fmt.Errorf("run %s: mark processing failed: %w", run.RunKey, err)
	}
	if applied {
		e.recordTransition(ctx, run, doc.Status, domain.StatusProcessingFailed, doc.ProcessingAttempts,
			domain.ActionProcessingFailed, message)
	}

	if retryable {
		if _, err := e.runs.AdvanceStep(ctx, run.RunKey, run.Step, domain.StepBegin, nil); err != nil {
			return fmt.Errorf("run %s: rewind for retry: %w", run.RunKey, err)
		}
		if e.observer != nil {
			e.observer.RecordRetryScheduled()
		}
		e.logger.Warn("ingestion_retry_scheduled",
			"run_key", run.RunKey,
			"document_id", run.DocumentID,
			"attempt", doc.ProcessingAttempts,
			"next_retry_at", nextRetryAt,
		)
		return nil
	}

	if err := e.runs.FailRun(ctx, run.RunKey, message); err != nil {
		return fmt.Errorf("run %s: fail run: %w", run.RunKey, err)
	}
	e.logger.Error("ingestion_terminal_failure",
		"run_key", run.RunKey,
		"document_id", run.DocumentID,
		"kind", string(kind),
		"attempt", doc.ProcessingAttempts,
	)
	return nil
}

// reconcileTerminal closes the run to match a document that already reached
// a terminal status, e.g. when the process died after finalize committed
// but before the run record was closed.
func (e *IngestionEngine) reconcileTerminal(ctx context.Context, run *domain.WorkflowRun, doc *domain.Document) error {
	var result domain.RunResult
	switch doc.Status {
	case domain.StatusInfected:
		result = domain.RunResultInfected
	default:
		result = domain.RunResultActive
	}
	if err := e.runs.CompleteRun(ctx, run.RunKey, result); err != nil {
		return fmt.Errorf("run %s: reconcile terminal document: %w", run.RunKey, err)
	}
	return nil
}

func (e *IngestionEngine) failRunTerminal(ctx context.Context, run *domain.WorkflowRun, cause string) error {
	if err := e.runs.FailRun(ctx, run.RunKey, cause); err != nil {
		return fmt.Errorf("run %s: fail run: %w", run.RunKey, err)
	}
	e.logger.Error("ingestion_run_failed", "run_key", run.RunKey, "cause", cause)
	return nil
}

func (e *IngestionEngine) advance(ctx context.Context, run *domain.WorkflowRun, from, to domain.WorkflowStep, checkpoint []byte) (bool, error) {
	advanced, err := e.runs.AdvanceStep(ctx, run.RunKey, from, to, checkpoint)
	if err != nil {
		return false, fmt.Errorf("run %s: advance %s->%s: %w", run.RunKey, from, to, err)
	}
	if !advanced {
		// Another executor moved the run first. Per-key ordering makes this
		// rare; yield rather than double-apply.
		return false, nil
	}
	e.observeStep(from, "ok")
	run.Step = to
	run.Checkpoint = checkpoint
	return true, nil
}

// recordTransition appends the activity event for one durable transition.
// The transition has already taken effect externally, so an audit failure
// is logged and never rolls the transition back.
func (e *IngestionEngine) recordTransition(
	ctx context.Context,
	run *domain.WorkflowRun,
	prev, next domain.DocumentStatus,
	attempts int,
	action, summary string,
) {
	event := &domain.ActivityEvent{
		ID:             uuid.NewString(),
		OrganizationID: run.OrganizationID,
		EntityType:     domain.EntityTypeDocument,
		EntityID:       run.DocumentID,
		Action:         action,
		Category:       domain.ActivityCategoryIngestion,
		Summary:        summary,
		ActorID:        "ingestion-engine",
		ActorKind:      domain.ActorKindSystem,
		PreviousState:  domain.StatusSnapshot{Status: prev}.JSON(),
		NewState:       domain.StatusSnapshot{Status: next, Attempts: attempts}.JSON(),
		CorrelationID:  run.RunKey,
		CreatedAt:      e.now(),
	}
	if err := e.gateway.InsertActivityEvent(ctx, event); err != nil {
		e.logger.Error("activity_event_insert_failed",
			"run_key", run.RunKey,
			"document_id", run.DocumentID,
			"action", action,
			"error", err,
		)
	}
}

func finalStorageKey(doc *domain.Document) string {
	ext := path.Ext(doc.FileName)
	return fmt.Sprintf("%s/%s%s", doc.OrganizationID, doc.ID, ext)
}
