package cli

import (
	"testing"
	"time"
)

func TestSetupSignalHandler_NotCancelledInitially(t *testing.T) {
	ctx := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Error("context should not be cancelled initially")
	default:
	}

	if ctx.Done() == nil {
		t.Error("context should have a Done channel")
	}
}

func TestSetupSignalHandler_StaysActiveWithoutSignal(t *testing.T) {
	ctx := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Error("context cancelled too early")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestWaitForShutdown_EmptyInitially(t *testing.T) {
	sigChan := WaitForShutdown()
	if sigChan == nil {
		t.Fatal("WaitForShutdown() returned nil channel")
	}

	select {
	case <-sigChan:
		t.Error("signal channel should be empty initially")
	case <-time.After(10 * time.Millisecond):
	}
}
