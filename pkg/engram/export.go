package engram

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/engramdb/engram/pkg/entry"
	"github.com/engramdb/engram/pkg/selector"
)

// Export writes every stored entry to w as a typed markdown document,
// grouped by file type in canonical order. Returns the number of entries
// written.
func (e *Engine) Export(ctx context.Context, w io.Writer) (n int, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "export", start, err) }()

	entries, err := e.store.AllEntries(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	doc := selector.FormatAsDocument(entries)
	if _, err = io.WriteString(w, doc+"\n"); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	return len(entries), nil
}

// Stats summarizes the store for introspection.
type Stats struct {
	Entries           int64
	Indexed           int
	PendingEmbeddings int
	Backend           string
	ByType            map[entry.FileType]int
}

// Stats reports entry counts, index coverage, and backend identity, and
// refreshes the per-type entry gauges.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	total, err := e.store.EntryCount(ctx)
	if err != nil {
		return nil, err
	}

	byType := make(map[entry.FileType]int)
	all, err := e.store.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, en := range all {
		byType[en.FileType]++
	}
	for t, c := range byType {
		e.metrics.SetEntryCount(ctx, string(t), int64(c))
	}

	return &Stats{
		Entries:           total,
		Indexed:           e.index.Len(),
		PendingEmbeddings: e.embedder.PendingCount(),
		Backend:           string(e.store.Backend()),
		ByType:            byType,
	}, nil
}
