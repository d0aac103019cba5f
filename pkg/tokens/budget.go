package tokens

import "fmt"

// Budget defaults.
const (
	// DefaultWindowSize is the assumed model input window when the caller
	// does not know the real one.
	DefaultWindowSize = 200_000
	// DefaultReserveFraction is held back from the window for the response
	// and system overhead.
	DefaultReserveFraction = 0.20
)

// Utilization thresholds for budget status.
const (
	warningUtilization  = 0.70
	criticalUtilization = 0.90
)

// BudgetStatus classifies how full the usable window is.
type BudgetStatus string

const (
	StatusHealthy  BudgetStatus = "healthy"
	StatusWarning  BudgetStatus = "warning"
	StatusCritical BudgetStatus = "critical"
)

// Budget describes remaining room in the context window after the reserve
// is held back.
type Budget struct {
	WindowSize  int
	Reserved    int
	Total       int
	Used        int
	Remaining   int
	Utilization float64
	Status      BudgetStatus
	// Recommendation is a short operator-facing hint matching Status.
	Recommendation string
}

// ContextBudget computes the budget for used tokens against windowSize.
// Pass windowSize <= 0 for the default window and reserveFraction <= 0 for
// the default reserve. Used counts above the usable total clamp Remaining
// to zero.
func ContextBudget(used, windowSize int, reserveFraction float64) Budget {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if reserveFraction <= 0 || reserveFraction >= 1 {
		reserveFraction = DefaultReserveFraction
	}
	if used < 0 {
		used = 0
	}

	reserved := int(float64(windowSize) * reserveFraction)
	total := windowSize - reserved
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}

	var utilization float64
	if total > 0 {
		utilization = float64(used) / float64(total)
	}
	if utilization > 1 {
		utilization = 1
	}

	status := StatusHealthy
	recommendation := "budget healthy, no action needed"
	switch {
	case utilization >= criticalUtilization:
		status = StatusCritical
		recommendation = fmt.Sprintf("critical: %d tokens remain, compact or drop low-priority context now", remaining)
	case utilization >= warningUtilization:
		status = StatusWarning
		recommendation = fmt.Sprintf("warning: %d tokens remain, prefer summaries over full entries", remaining)
	}

	return Budget{
		WindowSize:     windowSize,
		Reserved:       reserved,
		Total:          total,
		Used:           used,
		Remaining:      remaining,
		Utilization:    utilization,
		Status:         status,
		Recommendation: recommendation,
	}
}
