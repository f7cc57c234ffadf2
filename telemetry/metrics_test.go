package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestHelpersNilSafeBeforeInit(t *testing.T) {
	// None of these may panic when Init has not run.
	IncMessagesProcessed()
	IncDuplicatesSkipped()
	IncRepliesSent()
	IncSendFailures()
	IncGreetings()
	IncContinuations()
	IncCleanups()
	IncTasksClaimed()
	IncTasksFailed()
	ObservePageFetch(time.Millisecond)
	ObserveTaskRun(time.Second)
	AddActiveSessions(1)
	AddActiveSessions(-1)
	SetQueueDepth(3)
}

func TestInitIdempotent(t *testing.T) {
	Init()
	// A second call must not re-register (promauto panics on duplicates).
	Init()
	if MessagesProcessed == nil {
		t.Fatal("counter not registered after Init")
	}
	IncMessagesProcessed()
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on empty context = %q", got)
	}
	ctx = WithCorrelation(ctx, "corr-1")
	if got := GetCorrelation(ctx); got != "corr-1" {
		t.Errorf("GetCorrelation = %q, want corr-1", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
	if LoggerWithCorr(context.Background()) == nil {
		t.Error("LoggerWithCorr without id returned nil")
	}
}
