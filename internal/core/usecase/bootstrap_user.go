package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

// UserBootstrapService resolves a user's organization memberships and staff
// profile through the privileged gateway. This is the bootstrap read that
// runs before any tenant context can exist: membership is needed to pick a
// tenant, and tenant-scoped rows need a tenant.
type UserBootstrapService struct {
	gateway ports.SystemGateway
}

func NewUserBootstrapService(gateway ports.SystemGateway) *UserBootstrapService {
	return &UserBootstrapService{gateway: gateway}
}

func (s *UserBootstrapService) ResolveUser(ctx context.Context, userID string) ([]domain.OrganizationMembership, *domain.StaffProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "resolve user", errors.New("user id is required"))
	}

	memberships, err := s.gateway.ListUserMemberships(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list memberships: %w", err)
	}

	// Profile absence is a normal outcome, not an error.
	profile, err := s.gateway.GetStaffProfile(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load staff profile: %w", err)
	}

	return memberships, profile, nil
}
