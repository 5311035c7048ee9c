package agent

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedZapAdapter(level zapcore.Level) (*ZapAdapter, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapAdapter(zap.New(core)), logs
}

func TestZapAdapter_InfoLevel(t *testing.T) {
	adapter, logs := newObservedZapAdapter(zapcore.DebugLevel)

	adapter.Info(context.Background(), "task started", F("taskId", "t-1"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "task started" {
		t.Errorf("unexpected message: %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["taskId"]; got != "t-1" {
		t.Errorf("expected taskId field %q, got %v", "t-1", got)
	}
}

func TestZapAdapter_ErrorLevel(t *testing.T) {
	adapter, logs := newObservedZapAdapter(zapcore.DebugLevel)

	adapter.Error(context.Background(), "tool failed", F("code", "TOOL_EXECUTION_FAILED"))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error-level entry, got %+v", entries)
	}
}

func TestZapAdapter_DebugSuppressedBelowThreshold(t *testing.T) {
	adapter, logs := newObservedZapAdapter(zapcore.InfoLevel)

	adapter.Debug(context.Background(), "too verbose")

	if len(logs.All()) != 0 {
		t.Fatalf("expected debug entry to be suppressed, got %d entries", len(logs.All()))
	}
}
