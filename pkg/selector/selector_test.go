package selector

import (
	"strings"
	"testing"
	"time"

	"github.com/engramdb/engram/pkg/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// content25 is 100 characters, which the default estimator counts as 25
// tokens.
func content25() string {
	return strings.Repeat("abcd", 25)
}

func selEntry(fileType entry.FileType, content string) *entry.Entry {
	at := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	return &entry.Entry{
		FileType:  fileType,
		Timestamp: at.Format(time.RFC3339),
		Tag:       entry.TagFor(fileType, at),
		Content:   content,
	}
}

func TestSelectForBudget_ExactFit(t *testing.T) {
	entries := []*entry.Entry{
		selEntry(entry.TypeContext, content25()),
		selEntry(entry.TypeContext, content25()),
		selEntry(entry.TypeContext, content25()),
	}

	sel := SelectForBudget(entries, 50, Options{})
	require.Len(t, sel.Entries, 2, "two 25-token entries fill a 50-token budget")
	assert.Equal(t, 50, sel.TokensUsed)
	assert.Equal(t, 1, sel.Skipped)
	assert.False(t, sel.Truncated)
}

func TestSelectForBudget_NeverExceeds(t *testing.T) {
	entries := []*entry.Entry{
		selEntry(entry.TypeContext, content25()),
		selEntry(entry.TypeBrief, strings.Repeat("efgh", 40)), // 40 tokens
		selEntry(entry.TypeDecision, content25()),
	}

	sel := SelectForBudget(entries, 60, Options{})
	assert.LessOrEqual(t, sel.TokensUsed, 60)
	// The 40-token entry does not fit after the first 25; the third does.
	require.Len(t, sel.Entries, 2)
	assert.Equal(t, entry.TypeContext, sel.Entries[0].FileType)
	assert.Equal(t, entry.TypeDecision, sel.Entries[1].FileType)
	assert.Equal(t, 1, sel.Skipped)
}

func TestSelectForBudget_SkipsOversized(t *testing.T) {
	entries := []*entry.Entry{
		selEntry(entry.TypeContext, strings.Repeat("wxyz", 500)), // 500 tokens
		selEntry(entry.TypeContext, content25()),
	}

	sel := SelectForBudget(entries, 50, Options{})
	require.Len(t, sel.Entries, 1)
	assert.Equal(t, 25, sel.TokensUsed)
	assert.Equal(t, 1, sel.Skipped)
}

func TestSelectForBudget_TruncatesAtMostOne(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	entries := []*entry.Entry{
		selEntry(entry.TypeContext, long),
		selEntry(entry.TypeContext, long),
	}

	sel := SelectForBudget(entries, 80, Options{AllowTruncate: true})
	require.Len(t, sel.Entries, 1)
	assert.True(t, sel.Truncated)
	assert.LessOrEqual(t, sel.TokensUsed, 80)
	assert.Less(t, len(sel.Entries[0].Content), len(long))
	assert.Equal(t, 1, sel.Skipped)

	// The original entry is untouched.
	assert.Equal(t, long, entries[0].Content)
}

func TestSelectForBudget_NoTruncationBelowMinimum(t *testing.T) {
	entries := []*entry.Entry{
		selEntry(entry.TypeContext, content25()),
		selEntry(entry.TypeContext, content25()),
		selEntry(entry.TypeContext, content25()),
	}

	// Remaining budget after two entries is 5, below the truncation floor.
	sel := SelectForBudget(entries, 55, Options{AllowTruncate: true})
	require.Len(t, sel.Entries, 2)
	assert.False(t, sel.Truncated)
}

func TestSelectForBudget_ZeroBudget(t *testing.T) {
	entries := []*entry.Entry{selEntry(entry.TypeContext, "hello")}
	sel := SelectForBudget(entries, 0, Options{})
	assert.Empty(t, sel.Entries)
	assert.Equal(t, 1, sel.Skipped)
}

func TestSelectForBudget_CustomCounter(t *testing.T) {
	entries := []*entry.Entry{
		selEntry(entry.TypeContext, "one"),
		selEntry(entry.TypeContext, "two"),
	}

	// Every entry costs 10 under this counter.
	sel := SelectForBudget(entries, 15, Options{Count: func(string) int { return 10 }})
	require.Len(t, sel.Entries, 1)
	assert.Equal(t, 10, sel.TokensUsed)
}

func TestFormat(t *testing.T) {
	e := selEntry(entry.TypeDecision, "chose sqlite over flat files")
	got := Format(e)
	assert.True(t, strings.HasPrefix(got, "[DECISION:2025-06-15]\n"))
	assert.Contains(t, got, "chose sqlite over flat files")
}

func TestNormalize(t *testing.T) {
	in := "first paragraph\n\n\n\n\nsecond paragraph   \n    indented line\t\n"
	got := Normalize(in)

	assert.Equal(t, "first paragraph\n\nsecond paragraph\n    indented line", got)
}

func TestNormalize_PreservesIndentation(t *testing.T) {
	in := "code:\n    if x {\n        return\n    }"
	assert.Equal(t, in, Normalize(in))
}

func TestFormatAsDocument(t *testing.T) {
	entries := []*entry.Entry{
		selEntry(entry.TypeDecision, "decision one"),
		selEntry(entry.TypeContext, "context one"),
		selEntry(entry.TypeDecision, "decision two"),
	}

	doc := FormatAsDocument(entries)

	ctxAt := strings.Index(doc, "## CONTEXT")
	decAt := strings.Index(doc, "## DECISION")
	require.GreaterOrEqual(t, ctxAt, 0)
	require.Greater(t, decAt, ctxAt, "context section comes before decision")
	assert.Contains(t, doc, "decision one")
	assert.Contains(t, doc, "decision two")
	assert.NotContains(t, doc, "## PROGRESS", "empty sections are omitted")
}
