package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations include the Prometheus-backed collector and the no-op
// collector used when metrics are disabled.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordStage(ctx context.Context, operation string, stage string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	SetEntryCount(ctx context.Context, fileType string, count int64)
	RecordTokens(ctx context.Context, operation string, tokens int64)
	SetBudgetUtilization(ctx context.Context, utilization float64)
}
