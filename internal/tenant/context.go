// Package tenant binds the active tenant to a unit of work. The identity
// travels on the context.Context of the request or run, never in a shared
// variable, so concurrent units of work cannot observe each other's tenant
// and the scope is released on every exit path when the context dies.
package tenant

import (
	"context"
	"strings"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
)

type contextKey struct{}

// WithTenant returns a context carrying orgID as the active tenant for all
// tenant-scoped storage calls made with it.
func WithTenant(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, contextKey{}, strings.TrimSpace(orgID))
}

// FromContext reads the active tenant, reporting whether one is set.
func FromContext(ctx context.Context) (string, bool) {
	orgID, _ := ctx.Value(contextKey{}).(string)
	return orgID, orgID != ""
}

// Scope returns the active tenant or an isolation-violation error.
// Tenant-scoped repositories call this before touching storage so a missing
// context fails loudly instead of silently matching zero rows.
func Scope(ctx context.Context) (string, error) {
	orgID, ok := FromContext(ctx)
	if !ok {
		return "", domain.ErrNoTenantContext
	}
	return orgID, nil
}

// Run executes fn with orgID as the active tenant. The derived context is
// discarded when fn returns, on success, error and cancellation alike.
func Run(ctx context.Context, orgID string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(orgID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "tenant scope", domain.ErrNoTenantContext)
	}
	return fn(WithTenant(ctx, orgID))
}
