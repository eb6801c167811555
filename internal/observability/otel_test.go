package observability

import (
	"context"
	"testing"

	"github.com/flowforge/mediaflow/internal/platform/logger"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	shutdown := Init(context.Background(), log, Config{ServiceName: "mediaflow-test"})
	if shutdown == nil {
		t.Fatal("expected a non-nil shutdown func even when tracing is disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampleRatioDefaultsAndClamps(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "")
	if got := sampleRatio(); got != 0.1 {
		t.Fatalf("default sample ratio = %v, want 0.1", got)
	}

	t.Setenv("OTEL_SAMPLER_RATIO", "5")
	if got := sampleRatio(); got != 1 {
		t.Fatalf("sample ratio above 1 should clamp to 1, got %v", got)
	}

	t.Setenv("OTEL_SAMPLER_RATIO", "-1")
	if got := sampleRatio(); got != 0 {
		t.Fatalf("sample ratio below 0 should clamp to 0, got %v", got)
	}
}
