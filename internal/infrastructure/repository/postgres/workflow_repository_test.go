package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
)

func newWorkflowRepoWithMock(t *testing.T) (*WorkflowRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &WorkflowRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateRunDuplicateKeyIsNotCreated(t *testing.T) {
	repo, mock, done := newWorkflowRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO workflow_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateRun(context.Background(), &domain.WorkflowRun{
		RunKey:         domain.RunKeyForUpload("u-1"),
		UploadID:       "u-1",
		DocumentID:     "doc-1",
		OrganizationID: "org-1",
		Step:           domain.StepBegin,
		Status:         domain.RunStatusRunning,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if created {
		t.Fatalf("expected created=false on conflicting run key")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunUnknownKeyReturnsNil(t *testing.T) {
	repo, mock, done := newWorkflowRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT run_key").
		WithArgs("ingest:missing").
		WillReturnError(sql.ErrNoRows)

	run, err := repo.GetRun(context.Background(), "ingest:missing")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run for unknown key, got %+v", run)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunScansPersistedState(t *testing.T) {
	repo, mock, done := newWorkflowRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT run_key").
		WithArgs("ingest:u-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"run_key", "upload_id", "document_id", "organization_id",
			"step", "checkpoint", "status", "result", "failure_cause",
			"created_at", "updated_at",
		}).AddRow(
			"ingest:u-1", "u-1", "doc-1", "org-1",
			string(domain.StepScan), []byte(`{"verdict":"clean"}`), string(domain.RunStatusRunning), "", "",
			now, now,
		))

	run, err := repo.GetRun(context.Background(), "ingest:u-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Step != domain.StepScan || run.Status != domain.RunStatusRunning {
		t.Fatalf("unexpected run state: %+v", run)
	}
	if len(run.Checkpoint) == 0 {
		t.Fatalf("expected persisted checkpoint")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdvanceStepYieldsWhenAnotherExecutorMovedFirst(t *testing.T) {
	repo, mock, done := newWorkflowRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE workflow_runs").
		WithArgs("ingest:u-1", string(domain.StepBegin), string(domain.StepScan),
			nil, sqlmock.AnyArg(), string(domain.RunStatusRunning)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	advanced, err := repo.AdvanceStep(context.Background(), "ingest:u-1", domain.StepBegin, domain.StepScan, nil)
	if err != nil {
		t.Fatalf("AdvanceStep() error = %v", err)
	}
	if advanced {
		t.Fatalf("expected advanced=false on compare-and-set miss")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDueRetryRunsFiltersOnDurableState(t *testing.T) {
	repo, mock, done := newWorkflowRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT wr.run_key").
		WithArgs(string(domain.RunStatusRunning), string(domain.StatusProcessingFailed),
			string(domain.ErrorKindTransient), now, 3, 50).
		WillReturnRows(sqlmock.NewRows([]string{"run_key"}).
			AddRow("ingest:u-1").
			AddRow("ingest:u-2"))

	keys, err := repo.ListDueRetryRuns(context.Background(), now, 3, 50)
	if err != nil {
		t.Fatalf("ListDueRetryRuns() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "ingest:u-1" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListStaleRunningRunsExcludesParkedDocuments(t *testing.T) {
	repo, mock, done := newWorkflowRepoWithMock(t)
	defer done()

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	mock.ExpectQuery("SELECT wr.run_key").
		WithArgs(string(domain.RunStatusRunning), cutoff, string(domain.StatusProcessingFailed), 50).
		WillReturnRows(sqlmock.NewRows([]string{"run_key"}).
			AddRow("ingest:u-9"))

	keys, err := repo.ListStaleRunningRuns(context.Background(), cutoff, 50)
	if err != nil {
		t.Fatalf("ListStaleRunningRuns() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "ingest:u-9" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
