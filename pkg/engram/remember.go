package engram

import (
	"context"
	"fmt"
	"time"

	"github.com/engramdb/engram/pkg/entry"
	"github.com/engramdb/engram/pkg/store"
)

// Remember captures a new typed entry. The entry is durable when this
// returns; its embedding is generated in the background and attached once
// ready.
func (e *Engine) Remember(ctx context.Context, fileType entry.FileType, content string, meta entry.Metadata) (en *entry.Entry, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "remember", start, err) }()

	en = entry.New(fileType, content)
	if meta != nil {
		en.Metadata = meta
	}

	if _, err = e.store.AppendEntry(ctx, en); err != nil {
		return nil, err
	}

	if enqErr := e.embedder.Enqueue(en.ID, en.Content); enqErr != nil {
		// The entry is already durable; a full embedding queue only delays
		// semantic search for it.
		e.logger.Warn("embedding enqueue failed", "entry_id", en.ID, "error", enqErr)
	}
	return en, nil
}

// BatchItem is one entry to capture in a batch.
type BatchItem struct {
	FileType entry.FileType
	Content  string
	Metadata entry.Metadata
}

// BatchResult pairs a batch item with its outcome. Err is nil on success.
type BatchResult struct {
	Entry *entry.Entry
	Err   error
}

// RememberBatch captures entries one by one. A failed item does not stop
// the rest; each result carries its own error.
func (e *Engine) RememberBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}
		en, err := e.Remember(ctx, item.FileType, item.Content, item.Metadata)
		results[i] = BatchResult{Entry: en, Err: err}
	}
	return results
}

// Get fetches one entry by id, nil if absent.
func (e *Engine) Get(ctx context.Context, id int64) (*entry.Entry, error) {
	return e.store.GetEntry(ctx, id)
}

// Update replaces an entry's content and merges metadata, inside a
// per-entry transaction so concurrent updates to the same entry conflict
// instead of interleaving. The embedding is regenerated from the new
// content.
func (e *Engine) Update(ctx context.Context, id int64, content string, meta entry.Metadata) (err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "update", start, err) }()
	return e.mutate(ctx, id, store.UpdateRequest{Content: &content, Metadata: meta}, content)
}

// Append adds content behind the existing entry body, preserving history.
func (e *Engine) Append(ctx context.Context, id int64, content string, meta entry.Metadata) (err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "append", start, err) }()
	return e.mutate(ctx, id, store.UpdateRequest{AppendContent: &content, Metadata: meta}, "")
}

func (e *Engine) mutate(ctx context.Context, id int64, req store.UpdateRequest, reembedText string) error {
	tx, err := e.txns.Begin(id)
	if err != nil {
		return err
	}

	var updated *entry.Entry
	tx.Queue(func(ctx context.Context) error {
		ok, err := e.store.UpdateEntry(ctx, id, req)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("entry %d not found", id)
		}
		updated, err = e.store.GetEntry(ctx, id)
		return err
	})

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// Content changed, so the old vector is stale.
	text := reembedText
	if text == "" && updated != nil {
		text = updated.Content
	}
	if text != "" {
		e.index.Remove(id)
		if enqErr := e.embedder.Enqueue(id, text); enqErr != nil {
			e.logger.Warn("embedding enqueue failed", "entry_id", id, "error", enqErr)
		}
	}
	return nil
}
