package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

func newGatewayWithMock(t *testing.T) (*SystemGateway, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SystemGateway{db: db}, mock, func() { _ = db.Close() }
}

func TestGetDocumentForProcessingAbsentReturnsNil(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	doc, err := gateway.GetDocumentForProcessing(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetDocumentForProcessing() error = %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil for absent document, got %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkProcessingReplayMatchesZeroRows(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusPendingUpload), string(domain.StatusProcessingFailed)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := gateway.MarkProcessing(context.Background(), "doc-1", time.Now())
	if err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if applied {
		t.Fatalf("replay against a PROCESSING document must report applied=false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkProcessingAppliesOnPendingUpload(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusPendingUpload), string(domain.StatusProcessingFailed)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := gateway.MarkProcessing(context.Background(), "doc-1", time.Now())
	if err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if !applied {
		t.Fatalf("expected applied=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkInfectedRequiresProcessingStatus(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusInfected), string(domain.ScanStatusInfected),
			"Eicar-Test", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := gateway.MarkInfected(context.Background(), "doc-1", "Eicar-Test")
	if err != nil {
		t.Fatalf("MarkInfected() error = %v", err)
	}
	if applied {
		t.Fatalf("expected applied=false outside PROCESSING")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFinalizeDocumentCommitsMetadataInOneStatement(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusActive), "org-1/doc-1.pdf", "/files/org-1/doc-1.pdf",
			"abc123", int64(2048), nil, string(domain.ScanStatusClean),
			sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := gateway.FinalizeDocument(context.Background(), "doc-1", domain.FinalizeMetadata{
		StoragePath: "org-1/doc-1.pdf",
		FileURL:     "/files/org-1/doc-1.pdf",
		Checksum:    "abc123",
		FileSize:    2048,
	})
	if err != nil {
		t.Fatalf("FinalizeDocument() error = %v", err)
	}
	if !applied {
		t.Fatalf("expected applied=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertActivityEventIsInsertOnly(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO activity_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := gateway.InsertActivityEvent(context.Background(), &domain.ActivityEvent{
		ID:             "evt-1",
		OrganizationID: "org-1",
		EntityType:     domain.EntityTypeDocument,
		EntityID:       "doc-1",
		Action:         domain.ActionProcessingStarted,
		Category:       domain.ActivityCategoryIngestion,
		ActorID:        "ingestion-engine",
		ActorKind:      domain.ActorKindSystem,
		CorrelationID:  "ingest:u-1",
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertActivityEvent() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListUserMembershipsDefaultFirst(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT m.organization_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"organization_id", "name", "user_id", "role", "is_default", "created_at",
		}).
			AddRow("org-2", "Willow Creek HOA", "user-1", "owner", true, now).
			AddRow("org-1", "Maple Grove HOA", "user-1", "member", false, now))

	memberships, err := gateway.ListUserMemberships(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListUserMemberships() error = %v", err)
	}
	if len(memberships) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(memberships))
	}
	if !memberships[0].IsDefault || memberships[0].OrganizationName != "Willow Creek HOA" {
		t.Fatalf("expected default membership first, got %+v", memberships[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetStaffProfileAbsenceIsNotAnError(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT user_id").
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	profile, err := gateway.GetStaffProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetStaffProfile() error = %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAdminFilterPredicateRendersViews(t *testing.T) {
	cases := []struct {
		view     ports.AdminView
		wantArgs int
	}{
		{ports.AdminViewProcessing, 1},
		{ports.AdminViewInfected, 1},
		{ports.AdminViewHistory, 2},
		{ports.AdminViewAutoRetry, 3},
		{ports.AdminViewNeedsAttention, 3},
	}
	for _, tc := range cases {
		where, args := adminFilterPredicate(ports.AdminDocumentFilter{View: tc.view}, 3)
		if where == "" {
			t.Fatalf("view %q rendered empty predicate", tc.view)
		}
		if len(args) != tc.wantArgs {
			t.Fatalf("view %q: expected %d args, got %d", tc.view, tc.wantArgs, len(args))
		}
	}

	where, args := adminFilterPredicate(ports.AdminDocumentFilter{Status: domain.StatusActive}, 3)
	if where != " AND d.status = $1" || len(args) != 1 {
		t.Fatalf("status filter rendered %q with %d args", where, len(args))
	}

	where, args = adminFilterPredicate(ports.AdminDocumentFilter{}, 3)
	if where != "" || args != nil {
		t.Fatalf("empty filter must render no predicate")
	}
}

func TestListDocumentsAdminAutoRetryView(t *testing.T) {
	gateway, mock, done := newGatewayWithMock(t)
	defer done()

	now := time.Now().UTC()
	retryAt := now.Add(time.Minute)
	mock.ExpectQuery("SELECT d.id").
		WithArgs(string(domain.StatusProcessingFailed), string(domain.ErrorKindTransient), 3, 25, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "status", "file_name", "file_size", "content_type", "checksum",
			"storage_path", "file_url", "thumbnail_path", "scan_status",
			"processing_attempts", "processing_error_type", "processing_error_message",
			"processing_next_retry_at", "processing_started_at", "processing_completed_at",
			"created_at", "updated_at", "deleted_at",
			"name",
		}).AddRow(
			"doc-1", "org-1", string(domain.StatusProcessingFailed), "bylaws.pdf", int64(2048), "application/pdf", "",
			"staging/u-1_bylaws.pdf", "", nil, string(domain.ScanStatusPending),
			1, string(domain.ErrorKindTransient), "malware scan: timeout",
			retryAt, now, nil,
			now, now, nil,
			"Maple Grove HOA",
		))

	rows, err := gateway.ListDocumentsAdmin(context.Background(), ports.AdminDocumentFilter{
		View:    ports.AdminViewAutoRetry,
		Page:    1,
		PerPage: 25,
	}, 3)
	if err != nil {
		t.Fatalf("ListDocumentsAdmin() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].OrganizationName != "Maple Grove HOA" {
		t.Fatalf("expected joined organization name, got %q", rows[0].OrganizationName)
	}
	if rows[0].Document.ProcessingErrorType != domain.ErrorKindTransient {
		t.Fatalf("unexpected error kind: %s", rows[0].Document.ProcessingErrorType)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
