package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
)

func TestDispatchDuePublishesAllDueKeys(t *testing.T) {
	runs := newRunStoreFake()
	runs.dueKeys = []string{"ingest:u-1", "ingest:u-2"}
	queue := &queueFake{}
	dispatcher := NewRetryDispatcher(runs, queue, discardLogger(), time.Second, 3, 50, 10*time.Minute)

	if got := dispatcher.DispatchDue(context.Background()); got != 2 {
		t.Fatalf("expected 2 dispatched, got %d", got)
	}
	if len(queue.published) != 2 || queue.published[0] != "ingest:u-1" {
		t.Fatalf("unexpected published keys: %v", queue.published)
	}
}

func TestDispatchDueSurvivesListFailure(t *testing.T) {
	runs := newRunStoreFake()
	runs.listErr = errors.New("db down")
	dispatcher := NewRetryDispatcher(runs, &queueFake{}, discardLogger(), time.Second, 3, 50, 10*time.Minute)

	if got := dispatcher.DispatchDue(context.Background()); got != 0 {
		t.Fatalf("expected 0 dispatched on list failure, got %d", got)
	}
}

func TestDispatchDueContinuesPastPublishFailure(t *testing.T) {
	runs := newRunStoreFake()
	runs.dueKeys = []string{"ingest:u-1"}
	queue := &queueFake{publishErr: errors.New("nats down")}
	dispatcher := NewRetryDispatcher(runs, queue, discardLogger(), time.Second, 3, 50, 10*time.Minute)

	// Nothing is lost: the key stays due and the next tick retries it.
	if got := dispatcher.DispatchDue(context.Background()); got != 0 {
		t.Fatalf("expected 0 dispatched, got %d", got)
	}
}

func TestDispatchStaleRepublishesStrandedRun(t *testing.T) {
	runs := newRunStoreFake()
	runs.staleKeys = []string{"ingest:u-9"}
	queue := &queueFake{}
	dispatcher := NewRetryDispatcher(runs, queue, discardLogger(), time.Second, 3, 50, 10*time.Minute)

	if got := dispatcher.DispatchStale(context.Background()); got != 1 {
		t.Fatalf("expected 1 stale run dispatched, got %d", got)
	}
	if len(queue.published) != 1 || queue.published[0] != "ingest:u-9" {
		t.Fatalf("unexpected published keys: %v", queue.published)
	}
}

// A worker crash mid-step leaves the run running with the document still in
// PROCESSING; the queue never redelivers on its own. The sweep republishes
// the key and the next delivery resumes from the recorded step.
func TestStrandedRunResumesAfterStaleRepublish(t *testing.T) {
	runs := newRunStoreFake()
	doc := pendingDocument()
	doc.Status = domain.StatusProcessing
	doc.ProcessingAttempts = 1
	gateway := &gatewayFake{doc: doc}
	scanner := &scannerFake{verdict: ports.ScanVerdict{Status: domain.ScanStatusClean}}
	queue := &queueFake{}
	engine := newEngineForTest(runs, gateway, scanner, &storageFake{}, queue)

	ack, err := engine.Accept(context.Background(), finishedHook("u-1"))
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	// The crash happened after the run advanced to the scan step; the
	// enqueued delivery for it was consumed and lost with the process.
	runs.runs[ack.RunKey].Step = domain.StepScan
	queue.published = nil

	runs.staleKeys = []string{ack.RunKey}
	dispatcher := NewRetryDispatcher(runs, queue, discardLogger(), time.Second, 3, 50, 10*time.Minute)
	if got := dispatcher.DispatchStale(context.Background()); got != 1 {
		t.Fatalf("expected the stranded run republished, got %d", got)
	}
	if len(queue.published) != 1 || queue.published[0] != ack.RunKey {
		t.Fatalf("unexpected republished keys: %v", queue.published)
	}

	if err := engine.ProcessRun(context.Background(), queue.published[0]); err != nil {
		t.Fatalf("ProcessRun() after republish error = %v", err)
	}
	if gateway.doc.Status != domain.StatusActive {
		t.Fatalf("expected ACTIVE after resume, got %s", gateway.doc.Status)
	}
	if gateway.doc.ProcessingAttempts != 1 {
		t.Fatalf("resume must not re-count the attempt, got %d", gateway.doc.ProcessingAttempts)
	}
	if got := runs.runs[ack.RunKey].Status; got != domain.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", got)
	}
}
