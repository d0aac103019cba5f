// Package selector picks which entries fit a token budget and renders them
// into prompt-ready text.
package selector

import (
	"strings"
	"unicode/utf8"

	"github.com/engramdb/engram/pkg/entry"
	"github.com/engramdb/engram/pkg/tokens"
)

// minTruncateTokens is the smallest leftover budget worth filling with a
// truncated entry. Below this a fragment carries no useful signal.
const minTruncateTokens = 10

// CountFunc measures the token cost of a piece of text.
type CountFunc func(text string) int

// Selection is the outcome of a budgeted pick.
type Selection struct {
	Entries    []*entry.Entry
	TokensUsed int
	// Truncated reports that the last selected entry was cut to fit.
	Truncated bool
	// Skipped counts candidates left out for lack of budget.
	Skipped int
}

// Options tune SelectForBudget. Zero values take defaults.
type Options struct {
	// Count measures entry content; defaults to tokens.Estimate.
	Count CountFunc
	// AllowTruncate permits cutting one entry to use leftover budget.
	AllowTruncate bool
}

// SelectForBudget walks candidates in order and greedily accepts each entry
// whose content fits the remaining budget. Entries too large for what is
// left are skipped, never partially double-counted; with AllowTruncate set,
// at most one entry is cut down to fill a meaningful remainder. The
// selection never exceeds budget.
func SelectForBudget(candidates []*entry.Entry, budget int, opts Options) Selection {
	count := opts.Count
	if count == nil {
		count = tokens.Estimate
	}

	sel := Selection{}
	if budget <= 0 {
		sel.Skipped = len(candidates)
		return sel
	}

	remaining := budget
	for _, e := range candidates {
		cost := count(e.Content)
		if cost <= remaining {
			sel.Entries = append(sel.Entries, e)
			sel.TokensUsed += cost
			remaining -= cost
			continue
		}

		if opts.AllowTruncate && !sel.Truncated && remaining >= minTruncateTokens {
			cut := truncateToTokens(e.Content, remaining, count)
			if cut != "" {
				trimmed := *e
				trimmed.Content = cut
				cost = count(cut)
				sel.Entries = append(sel.Entries, &trimmed)
				sel.TokensUsed += cost
				remaining -= cost
				sel.Truncated = true
				continue
			}
		}
		sel.Skipped++
	}
	return sel
}

// truncateToTokens cuts text so its measured cost fits budget, breaking at
// a rune boundary and preferring a trailing space so words stay whole.
func truncateToTokens(text string, budget int, count CountFunc) string {
	limit := budget * 4
	if limit >= len(text) {
		return text
	}

	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	cut := text[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	cut = strings.TrimRight(cut, " \t\n")

	// The char heuristic can overshoot when the counter is word-based;
	// back off by whole words until it fits.
	for cut != "" && count(cut) > budget {
		i := strings.LastIndexByte(cut, ' ')
		if i <= 0 {
			return ""
		}
		cut = strings.TrimRight(cut[:i], " \t\n")
	}
	return cut
}
