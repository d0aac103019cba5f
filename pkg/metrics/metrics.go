package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for engram
// operations.
type MetricsCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	entryCount        *prometheus.GaugeVec
	tokensTotal       *prometheus.CounterVec
	budgetUtilization prometheus.Gauge
	registry          *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_operations_total",
			Help: "Total number of engram operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engram_operation_duration_seconds",
			Help:    "Duration of engram operations by type and stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"operation", "stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	entryCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engram_entries",
			Help: "Current count of stored entries by file type",
		},
		[]string{"file_type"},
	)

	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_tokens_total",
			Help: "Total tokens consumed by operation",
		},
		[]string{"operation"},
	)

	budgetUtilization := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engram_budget_utilization",
			Help: "Fraction of the usable context window currently consumed",
		},
	)

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(entryCount)
	registry.MustRegister(tokensTotal)
	registry.MustRegister(budgetUtilization)

	return &MetricsCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		entryCount:        entryCount,
		tokensTotal:       tokensTotal,
		budgetUtilization: budgetUtilization,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation.
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordStage records the duration of a specific stage within an operation.
func (m *MetricsCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence.
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetEntryCount sets the current entry count for a file type.
func (m *MetricsCollector) SetEntryCount(ctx context.Context, fileType string, count int64) {
	m.entryCount.WithLabelValues(fileType).Set(float64(count))
}

// RecordTokens adds consumed tokens for an operation.
func (m *MetricsCollector) RecordTokens(ctx context.Context, operation string, tokens int64) {
	m.tokensTotal.WithLabelValues(operation).Add(float64(tokens))
}

// SetBudgetUtilization publishes the current context budget utilization.
func (m *MetricsCollector) SetBudgetUtilization(ctx context.Context, utilization float64) {
	m.budgetUtilization.Set(utilization)
}

// Registry returns the Prometheus registry for HTTP exposure.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
