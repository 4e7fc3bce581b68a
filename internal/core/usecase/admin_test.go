package usecase

import (
	"context"
	"testing"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

type adminGatewayFake struct {
	gatewayFake
	lastFilter      ports.AdminDocumentFilter
	lastMaxAttempts int
	rows            []ports.AdminDocumentRow
}

func (f *adminGatewayFake) ListDocumentsAdmin(_ context.Context, filter ports.AdminDocumentFilter, maxAttempts int) ([]ports.AdminDocumentRow, error) {
	f.lastFilter = filter
	f.lastMaxAttempts = maxAttempts
	return f.rows, nil
}

func TestListDocumentsNormalizesPaging(t *testing.T) {
	gateway := &adminGatewayFake{}
	svc := NewAdminDocumentService(gateway, 3, 25)

	_, err := svc.ListDocuments(context.Background(), ports.AdminDocumentFilter{
		View:    ports.AdminViewProcessing,
		Page:    0,
		PerPage: 1000,
	})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if gateway.lastFilter.Page != 1 {
		t.Fatalf("expected page 1, got %d", gateway.lastFilter.Page)
	}
	if gateway.lastFilter.PerPage != 25 {
		t.Fatalf("expected default page size, got %d", gateway.lastFilter.PerPage)
	}
	if gateway.lastMaxAttempts != 3 {
		t.Fatalf("expected attempt cap passed through, got %d", gateway.lastMaxAttempts)
	}
}

func TestListDocumentsRejectsUnknownView(t *testing.T) {
	svc := NewAdminDocumentService(&adminGatewayFake{}, 3, 25)

	_, err := svc.ListDocuments(context.Background(), ports.AdminDocumentFilter{View: "everything"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestListDocumentsRejectsUnknownStatus(t *testing.T) {
	svc := NewAdminDocumentService(&adminGatewayFake{}, 3, 25)

	_, err := svc.ListDocuments(context.Background(), ports.AdminDocumentFilter{Status: "DRAFT"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestListDocumentsAcceptsCannedViews(t *testing.T) {
	gateway := &adminGatewayFake{}
	svc := NewAdminDocumentService(gateway, 3, 25)

	for _, view := range []ports.AdminView{
		ports.AdminViewProcessing,
		ports.AdminViewInfected,
		ports.AdminViewHistory,
		ports.AdminViewAutoRetry,
		ports.AdminViewNeedsAttention,
	} {
		if _, err := svc.ListDocuments(context.Background(), ports.AdminDocumentFilter{View: view}); err != nil {
			t.Fatalf("view %q rejected: %v", view, err)
		}
	}
}
