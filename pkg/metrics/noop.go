package metrics

import "context"

// NoopCollector is a no-op implementation used when metrics are disabled.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordOperation does nothing when metrics are disabled.
func (n *NoopCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

// RecordStage does nothing when metrics are disabled.
func (n *NoopCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
}

// RecordError does nothing when metrics are disabled.
func (n *NoopCollector) RecordError(ctx context.Context, operation string, errorType string) {
}

// SetEntryCount does nothing when metrics are disabled.
func (n *NoopCollector) SetEntryCount(ctx context.Context, fileType string, count int64) {
}

// RecordTokens does nothing when metrics are disabled.
func (n *NoopCollector) RecordTokens(ctx context.Context, operation string, tokens int64) {
}

// SetBudgetUtilization does nothing when metrics are disabled.
func (n *NoopCollector) SetBudgetUtilization(ctx context.Context, utilization float64) {
}
