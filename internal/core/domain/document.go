package domain

import "time"

type DocumentStatus string

const (
	StatusPendingUpload    DocumentStatus = "PENDING_UPLOAD"
	StatusProcessing       DocumentStatus = "PROCESSING"
	StatusActive           DocumentStatus = "ACTIVE"
	StatusSuperseded       DocumentStatus = "SUPERSEDED"
	StatusProcessingFailed DocumentStatus = "PROCESSING_FAILED"
	StatusInfected         DocumentStatus = "INFECTED"
)

// ProcessingErrorKind classifies a failed processing step. Transient failures
// are eligible for automatic retry, permanent ones wait for a human.
type ProcessingErrorKind string

const (
	ErrorKindTransient ProcessingErrorKind = "TRANSIENT"
	ErrorKindPermanent ProcessingErrorKind = "PERMANENT"
)

type ScanStatus string

const (
	ScanStatusPending  ScanStatus = "pending"
	ScanStatusClean    ScanStatus = "clean"
	ScanStatusInfected ScanStatus = "infected"
)

type Document struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Status         DocumentStatus `json:"status"`

	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	FileURL     string `json:"file_url,omitempty"`

	ThumbnailPath *string    `json:"thumbnail_path,omitempty"`
	ScanStatus    ScanStatus `json:"scan_status,omitempty"`

	ProcessingAttempts     int                 `json:"processing_attempts"`
	ProcessingErrorType    ProcessingErrorKind `json:"processing_error_type,omitempty"`
	ProcessingErrorMessage string              `json:"processing_error_message,omitempty"`
	ProcessingNextRetryAt  *time.Time          `json:"processing_next_retry_at,omitempty"`
	ProcessingStartedAt    *time.Time          `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt  *time.Time          `json:"processing_completed_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Terminal reports whether the workflow engine can still move the document.
// SUPERSEDED counts as terminal: a newer version owns the current slot and
// the old run's output is no longer surfaced.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusActive, StatusSuperseded, StatusInfected:
		return true
	}
	return false
}

// FinalizeMetadata carries everything the finalize step writes in one call.
type FinalizeMetadata struct {
	StoragePath   string
	FileURL       string
	Checksum      string
	FileSize      int64
	ThumbnailPath *string
}
