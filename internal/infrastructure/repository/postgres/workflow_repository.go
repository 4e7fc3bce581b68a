package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
)

// WorkflowRepository persists durable run state. It is deliberately
// tenant-agnostic: the run table is owned by the engine, which is the one
// component allowed to write across tenants.
type WorkflowRepository struct {
	db *sql.DB
}

func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// CreateRun inserts the run iff its deterministic key is new. A duplicate
// trigger therefore collapses onto the existing run without touching it,
// even when the document row is not yet visible to the second delivery.
func (r *WorkflowRepository) CreateRun(ctx context.Context, run *domain.WorkflowRun) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO workflow_runs (
	run_key, upload_id, document_id, organization_id, step, checkpoint, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (run_key) DO NOTHING
`,
		run.RunKey, run.UploadID, run.DocumentID, run.OrganizationID,
		string(run.Step), nullableJSON(run.Checkpoint), string(run.Status),
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert workflow run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert run rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *WorkflowRepository) GetRun(ctx context.Context, runKey string) (*domain.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT run_key, upload_id, document_id, organization_id, step, checkpoint, status, result, failure_cause, created_at, updated_at
FROM workflow_runs
WHERE run_key = $1
`, runKey)

	var run domain.WorkflowRun
	var step, status, result string
	var checkpoint []byte
	err := row.Scan(
		&run.RunKey, &run.UploadID, &run.DocumentID, &run.OrganizationID,
		&step, &checkpoint, &status, &result, &run.FailureCause,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan workflow run: %w", err)
	}
	run.Step = domain.WorkflowStep(step)
	run.Status = domain.RunStatus(status)
	run.Result = domain.RunResult(result)
	run.Checkpoint = checkpoint
	return &run, nil
}

// AdvanceStep commits the checkpoint and moves the run from one step to the
// next in a single compare-and-set. false means another executor moved the
// run first.
func (r *WorkflowRepository) AdvanceStep(ctx context.Context, runKey string, from, to domain.WorkflowStep, checkpoint []byte) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE workflow_runs
SET step = $3, checkpoint = COALESCE($4, checkpoint), updated_at = $5
WHERE run_key = $1 AND step = $2 AND status = $6
`, runKey, string(from), string(to), nullableJSON(checkpoint), time.Now().UTC(), string(domain.RunStatusRunning))
	if err != nil {
		return false, fmt.Errorf("advance run step: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance step rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *WorkflowRepository) CompleteRun(ctx context.Context, runKey string, result domain.RunResult) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE workflow_runs
SET status = $2, result = $3, updated_at = $4
WHERE run_key = $1 AND status = $5
`, runKey, string(domain.RunStatusCompleted), string(result), time.Now().UTC(), string(domain.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("complete workflow run: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) FailRun(ctx context.Context, runKey string, cause string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE workflow_runs
SET status = $2, result = $3, failure_cause = $4, updated_at = $5
WHERE run_key = $1 AND status = $6
`, runKey, string(domain.RunStatusFailed), string(domain.RunResultFailed), cause,
		time.Now().UTC(), string(domain.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("fail workflow run: %w", err)
	}
	return nil
}

// ListDueRetryRuns returns keys of running runs whose documents are parked
// in PROCESSING_FAILED with a due TRANSIENT retry and attempts below the
// cap. The join keeps dispatch decisions on durable state only.
func (r *WorkflowRepository) ListDueRetryRuns(ctx context.Context, now time.Time, maxAttempts, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT wr.run_key
FROM workflow_runs wr
JOIN documents d ON d.id = wr.document_id
WHERE wr.status = $1
  AND d.status = $2
  AND d.processing_error_type = $3
  AND d.processing_next_retry_at IS NOT NULL
  AND d.processing_next_retry_at <= $4
  AND d.processing_attempts < $5
ORDER BY d.processing_next_retry_at ASC
LIMIT $6
`, string(domain.RunStatusRunning), string(domain.StatusProcessingFailed),
		string(domain.ErrorKindTransient), now, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list due retry runs: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan run key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run keys: %w", err)
	}
	return keys, nil
}

// ListStaleRunningRuns returns keys of running runs untouched since the
// cutoff whose documents are not parked in PROCESSING_FAILED. Parked
// documents are excluded because their redelivery belongs to the due-retry
// query and must wait for next_retry_at.
func (r *WorkflowRepository) ListStaleRunningRuns(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT wr.run_key
FROM workflow_runs wr
JOIN documents d ON d.id = wr.document_id
WHERE wr.status = $1
  AND wr.updated_at < $2
  AND d.status <> $3
ORDER BY wr.updated_at ASC
LIMIT $4
`, string(domain.RunStatusRunning), cutoff, string(domain.StatusProcessingFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale running runs: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan run key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run keys: %w", err)
	}
	return keys, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
