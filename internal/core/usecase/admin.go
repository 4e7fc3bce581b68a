package usecase

import (
	"context"
	"fmt"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

// AdminDocumentService serves the privileged, cross-tenant document listing
// behind the operator UI. It goes through the system gateway: no tenant
// context is active on admin requests.
type AdminDocumentService struct {
	gateway     ports.SystemGateway
	maxAttempts int
	defaultPage int
}

func NewAdminDocumentService(gateway ports.SystemGateway, maxAttempts, defaultPageSize int) *AdminDocumentService {
	if defaultPageSize <= 0 {
		defaultPageSize = 25
	}
	return &AdminDocumentService{
		gateway:     gateway,
		maxAttempts: maxAttempts,
		defaultPage: defaultPageSize,
	}
}

func (s *AdminDocumentService) ListDocuments(ctx context.Context, filter ports.AdminDocumentFilter) ([]ports.AdminDocumentRow, error) {
	if filter.View != "" {
		switch filter.View {
		case ports.AdminViewProcessing, ports.AdminViewInfected, ports.AdminViewHistory,
			ports.AdminViewAutoRetry, ports.AdminViewNeedsAttention:
		default:
			return nil, domain.WrapError(domain.ErrInvalidInput, "admin list documents",
				fmt.Errorf("unknown view %q", filter.View))
		}
	} else if filter.Status != "" {
		switch filter.Status {
		case domain.StatusPendingUpload, domain.StatusProcessing, domain.StatusActive,
			domain.StatusSuperseded, domain.StatusProcessingFailed, domain.StatusInfected:
		default:
			return nil, domain.WrapError(domain.ErrInvalidInput, "admin list documents",
				fmt.Errorf("unknown status %q", filter.Status))
		}
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 200 {
		filter.PerPage = s.defaultPage
	}

	rows, err := s.gateway.ListDocumentsAdmin(ctx, filter, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("admin list documents: %w", err)
	}
	return rows, nil
}
