package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector_RecordOperation(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordOperation(ctx, "remember", "success", 1000)
	collector.RecordOperation(ctx, "remember", "success", 1500)
	collector.RecordOperation(ctx, "remember", "error", 500)
	collector.RecordOperation(ctx, "recall", "success", 200)

	if got := testutil.CollectAndCount(collector.operationsTotal); got != 3 {
		t.Errorf("expected 3 metric series (remember/success, remember/error, recall/success), got %d", got)
	}

	rememberSuccess := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("remember", "success"))
	if rememberSuccess != 2 {
		t.Errorf("expected 2 remember/success operations, got %f", rememberSuccess)
	}

	rememberError := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("remember", "error"))
	if rememberError != 1 {
		t.Errorf("expected 1 remember/error operation, got %f", rememberError)
	}
}

func TestMetricsCollector_RecordStage(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordStage(ctx, "remember", "validate", 100)
	collector.RecordStage(ctx, "remember", "embed", 2500)
	collector.RecordStage(ctx, "remember", "embed", 3000)

	if got := testutil.CollectAndCount(collector.operationDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestMetricsCollector_RecordError(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordError(ctx, "remember", "storage")
	collector.RecordError(ctx, "remember", "storage")
	collector.RecordError(ctx, "recall", "timeout")

	storageErrors := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("remember", "storage"))
	if storageErrors != 2 {
		t.Errorf("expected 2 storage errors, got %f", storageErrors)
	}
}

func TestMetricsCollector_SetEntryCount(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.SetEntryCount(ctx, "context", 42)
	collector.SetEntryCount(ctx, "decision", 7)

	got := testutil.ToFloat64(collector.entryCount.WithLabelValues("context"))
	if got != 42 {
		t.Errorf("expected 42 context entries, got %f", got)
	}

	collector.SetEntryCount(ctx, "context", 50)
	got = testutil.ToFloat64(collector.entryCount.WithLabelValues("context"))
	if got != 50 {
		t.Errorf("expected gauge update to 50, got %f", got)
	}
}

func TestMetricsCollector_Tokens(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordTokens(ctx, "build_context", 1200)
	collector.RecordTokens(ctx, "build_context", 800)

	got := testutil.ToFloat64(collector.tokensTotal.WithLabelValues("build_context"))
	if got != 2000 {
		t.Errorf("expected 2000 tokens recorded, got %f", got)
	}

	collector.SetBudgetUtilization(ctx, 0.72)
	if got := testutil.ToFloat64(collector.budgetUtilization); got != 0.72 {
		t.Errorf("expected utilization 0.72, got %f", got)
	}
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NewNoopCollector()
	ctx := context.Background()

	// Must be safe to call everything.
	c.RecordOperation(ctx, "remember", "success", 1)
	c.RecordStage(ctx, "remember", "embed", 1)
	c.RecordError(ctx, "remember", "storage")
	c.SetEntryCount(ctx, "context", 1)
	c.RecordTokens(ctx, "recall", 1)
	c.SetBudgetUtilization(ctx, 0.5)
}

func TestMetricsCollector_ImplementsInterface(t *testing.T) {
	var _ Collector = NewCollector()
}
