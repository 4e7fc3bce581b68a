package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowStep is the tagged resume point of an ingestion run. Each step has
// an explicit document-status precondition so crash recovery can replay a
// checkpoint and skip effects that already committed.
type WorkflowStep string

const (
	StepBegin    WorkflowStep = "begin"
	StepScan     WorkflowStep = "scan"
	StepFinalize WorkflowStep = "finalize"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunResult string

const (
	RunResultActive   RunResult = "active"
	RunResultInfected RunResult = "infected"
	RunResultFailed   RunResult = "failed"
)

// WorkflowRun is one durable, resumable execution of the ingestion state
// machine for a single upload. The run key is deterministic in the upload id
// so a duplicate trigger can never create a second logical run, even before
// the document row is visible to the second delivery.
type WorkflowRun struct {
	RunKey         string          `json:"run_key"`
	UploadID       string          `json:"upload_id"`
	DocumentID     string          `json:"document_id"`
	OrganizationID string          `json:"organization_id"`
	Step           WorkflowStep    `json:"step"`
	Checkpoint     json.RawMessage `json:"checkpoint,omitempty"`
	Status         RunStatus       `json:"status"`
	Result         RunResult       `json:"result,omitempty"`
	FailureCause   string          `json:"failure_cause,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RunKeyForUpload derives the deterministic run key for a physical upload.
func RunKeyForUpload(uploadID string) string {
	return fmt.Sprintf("ingest:%s", uploadID)
}

// ScanCheckpoint is the durable data committed after the scan step so the
// finalize step can be replayed without rescanning.
type ScanCheckpoint struct {
	Verdict   ScanStatus `json:"verdict"`
	Signature string     `json:"signature,omitempty"`
	ScannedAt time.Time  `json:"scanned_at"`
}

// UploadHook is the upload-complete callback payload.
type UploadHook struct {
	Type     string            `json:"Type"`
	ID       string            `json:"ID"`
	MetaData map[string]string `json:"MetaData,omitempty"`
}

// HookEventFinished is the only hook type that triggers ingestion; all other
// event types are acknowledged and ignored.
const HookEventFinished = "post-finish"
