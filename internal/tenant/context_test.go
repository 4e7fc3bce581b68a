package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
)

func TestScopeFailsLoudlyWithoutTenant(t *testing.T) {
	_, err := Scope(context.Background())
	if !errors.Is(err, domain.ErrNoTenantContext) {
		t.Fatalf("Scope() error = %v, want ErrNoTenantContext", err)
	}
}

func TestScopeReturnsActiveTenant(t *testing.T) {
	ctx := WithTenant(context.Background(), "org-1")
	orgID, err := Scope(ctx)
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	if orgID != "org-1" {
		t.Fatalf("Scope() = %q, want org-1", orgID)
	}
}

func TestRunScopesAndReleases(t *testing.T) {
	outer := context.Background()
	err := Run(outer, "org-7", func(ctx context.Context) error {
		orgID, err := Scope(ctx)
		if err != nil {
			return err
		}
		if orgID != "org-7" {
			t.Fatalf("inner tenant = %q, want org-7", orgID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := FromContext(outer); ok {
		t.Fatalf("outer context must not carry a tenant after Run")
	}
}

func TestRunRejectsEmptyTenant(t *testing.T) {
	err := Run(context.Background(), "  ", func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Run() error = %v, want ErrInvalidInput", err)
	}
}

func TestConcurrentContextsAreIsolated(t *testing.T) {
	base := context.Background()
	a := WithTenant(base, "org-a")
	b := WithTenant(base, "org-b")

	if got, _ := FromContext(a); got != "org-a" {
		t.Fatalf("context a tenant = %q", got)
	}
	if got, _ := FromContext(b); got != "org-b" {
		t.Fatalf("context b tenant = %q", got)
	}
}
