package domain

import (
	"encoding/json"
	"time"
)

type ActorKind string

const (
	ActorKindHuman      ActorKind = "human"
	ActorKindAutomation ActorKind = "automation"
	ActorKindSystem     ActorKind = "system"
)

// ActivityEvent is an immutable audit fact. One event per observable state
// transition; never updated or deleted after insertion.
type ActivityEvent struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Action         string          `json:"action"`
	Category       string          `json:"category"`
	Summary        string          `json:"summary"`
	ActorID        string          `json:"actor_id"`
	ActorKind      ActorKind       `json:"actor_kind"`
	PreviousState  json.RawMessage `json:"previous_state,omitempty"`
	NewState       json.RawMessage `json:"new_state,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

const (
	EntityTypeDocument = "document"

	ActivityCategoryIngestion = "document_ingestion"
	ActivityCategoryLifecycle = "document_lifecycle"

	ActionProcessingStarted  = "processing_started"
	ActionProcessingFinished = "processing_finished"
	ActionProcessingFailed   = "processing_failed"
	ActionMalwareDetected    = "malware_detected"
	ActionDocumentSuperseded = "document_superseded"
)

// StatusSnapshot is the previous/new state payload recorded with every
// document transition.
type StatusSnapshot struct {
	Status   DocumentStatus `json:"status"`
	Attempts int            `json:"attempts,omitempty"`
}

func (s StatusSnapshot) JSON() json.RawMessage {
	raw, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
