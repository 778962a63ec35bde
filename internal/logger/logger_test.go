package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZapKeepsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With("component", "ledger")

	l.Warn("notification enqueue failed", "registration_id", "r1")

	entries := logs.FilterMessage("notification enqueue failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "ledger" || ctx["registration_id"] != "r1" {
		t.Fatalf("unexpected context: %v", ctx)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level = %v", entries[0].Level)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	l := New("not-a-level", "development", "console")
	if l == nil {
		t.Fatal("expected logger")
	}
	_ = l.Sync()
}
