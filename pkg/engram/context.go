package engram

import (
	"context"
	"time"

	"github.com/engramdb/engram/pkg/entry"
	"github.com/engramdb/engram/pkg/selector"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/tokens"
)

// ContextRequest describes a budgeted context build.
type ContextRequest struct {
	// Query steers which entries are pulled in. Empty means most recent.
	Query string

	// UsedTokens is what the caller's conversation has already consumed;
	// the build fits inside what is left of the window.
	UsedTokens int

	// MaxEntries caps how many candidates are considered (default 50).
	MaxEntries int

	// FileType narrows candidates to one type.
	FileType entry.FileType

	// AllowTruncate permits cutting one entry to fill leftover budget.
	AllowTruncate bool
}

// ContextResult is an assembled, budget-fitted context document.
type ContextResult struct {
	Document string
	Entries  []*entry.Entry
	Budget   tokens.Budget
	// TokensUsed is the measured cost of the selected entry contents.
	TokensUsed int
	Truncated  bool
	Skipped    int
}

// BuildContext assembles the most relevant entries into a document that
// fits the remaining context budget. The budget status and the count
// telemetry land in the store's metric tables.
func (e *Engine) BuildContext(ctx context.Context, req ContextRequest) (res *ContextResult, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "build_context", start, err) }()

	if req.MaxEntries <= 0 {
		req.MaxEntries = store.DefaultQueryLimit
	}

	budget := tokens.ContextBudget(req.UsedTokens, e.cfg.WindowSize, 0)
	e.metrics.SetBudgetUtilization(ctx, budget.Utilization)

	stage := time.Now()
	candidates, err := e.contextCandidates(ctx, req)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordStage(ctx, "build_context", "candidates", time.Since(stage).Milliseconds())

	count := func(text string) int {
		c, cErr := e.counter.Count(ctx, text)
		if cErr != nil {
			return tokens.Estimate(text)
		}
		return c.InputTokens
	}

	stage = time.Now()
	sel := selector.SelectForBudget(candidates, budget.Remaining, selector.Options{
		Count:         count,
		AllowTruncate: req.AllowTruncate,
	})
	e.metrics.RecordStage(ctx, "build_context", "select", time.Since(stage).Milliseconds())

	res = &ContextResult{
		Document:   selector.FormatAsDocument(sel.Entries),
		Entries:    sel.Entries,
		Budget:     budget,
		TokensUsed: sel.TokensUsed,
		Truncated:  sel.Truncated,
		Skipped:    sel.Skipped,
	}

	e.metrics.RecordTokens(ctx, "build_context", int64(sel.TokensUsed))
	if mErr := e.store.RecordTokenMetric(ctx, store.TokenMetric{
		Timestamp:     time.Now().UTC(),
		Model:         e.cfg.TokenModel,
		InputTokens:   sel.TokensUsed,
		TotalTokens:   req.UsedTokens + sel.TokensUsed,
		ContextStatus: string(budget.Status),
	}); mErr != nil {
		e.logger.Debug("token metric record failed", "error", mErr)
	}

	return res, nil
}

// contextCandidates returns entries in selection-priority order: ranked by
// relevance when a query is given, newest first otherwise.
func (e *Engine) contextCandidates(ctx context.Context, req ContextRequest) ([]*entry.Entry, error) {
	if req.Query != "" {
		recalled, err := e.Recall(ctx, RecallQuery{
			Query:    req.Query,
			FileType: req.FileType,
			Limit:    req.MaxEntries,
		})
		if err != nil {
			return nil, err
		}
		out := make([]*entry.Entry, len(recalled))
		for i, r := range recalled {
			out[i] = r.Entry
		}
		return out, nil
	}
	return e.store.GetRecent(ctx, req.FileType, req.MaxEntries)
}

// Budget reports the current context budget for a given usage level
// without building anything.
func (e *Engine) Budget(usedTokens int) tokens.Budget {
	return tokens.ContextBudget(usedTokens, e.cfg.WindowSize, 0)
}
