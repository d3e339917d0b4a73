package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected debug level to parse: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug to be enabled")
	}

	logger, err = NewLogger("")
	if err != nil {
		t.Fatalf("expected default level: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug to be disabled by default")
	}

	if _, err := NewLogger("chatty"); err == nil {
		t.Fatal("expected invalid level to fail")
	}
}

func TestWithOperationAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithOperation(zap.New(core), "usecase.predict", "req-1").Info("hello")
	WithOperation(zap.New(core), "usecase.list", "").Info("bye")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["operation"] != "usecase.predict" || first["request_id"] != "req-1" {
		t.Fatalf("unexpected fields: %v", first)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Fatal("request_id should be omitted when empty")
	}
}

func TestOperationErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewOperationError("store.insert", "req-9", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach cause")
	}
	if got := err.Error(); got != "store.insert (request_id=req-9): boom" {
		t.Fatalf("unexpected message: %s", got)
	}
	if got := NewOperationError("store.insert", "", cause).Error(); got != "store.insert: boom" {
		t.Fatalf("unexpected message: %s", got)
	}
	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("nil cause must stay nil")
	}
}
