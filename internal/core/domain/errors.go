package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")

	// ErrTemporary marks transient infrastructure failures (network, timeout,
	// rate limit). Steps failing with this kind are scheduled for retry.
	ErrTemporary = errors.New("temporary failure")

	// ErrPermanentContent marks content the pipeline can never process
	// (corrupt file, unsupported type). No automatic retry.
	ErrPermanentContent = errors.New("permanent content failure")

	// ErrSecurityViolation marks a positive malware verdict. Terminal.
	ErrSecurityViolation = errors.New("security violation")

	// ErrNoTenantContext is an isolation violation: a tenant-scoped storage
	// operation ran with no active tenant and outside the system gateway.
	// Always a programming bug; it must fail loudly, never return empty rows.
	ErrNoTenantContext = errors.New("no active tenant context")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ClassifyProcessingError folds any step error into the retry taxonomy.
// Unknown errors default to transient so an infrastructure blip never
// strands a document without a retry.
func ClassifyProcessingError(err error) ProcessingErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermanentContent), errors.Is(err, ErrInvalidInput):
		return ErrorKindPermanent
	default:
		return ErrorKindTransient
	}
}
