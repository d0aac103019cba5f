package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/engramdb/engram/pkg/entry"
)

// MemoryStore is the in-memory EntryStore used when no SQLite engine can be
// opened. It mirrors the SQLite store's semantics so the rest of the system
// degrades gracefully; nothing persists across restarts.
type MemoryStore struct {
	mu           sync.RWMutex
	entries      map[int64]*entry.Entry
	order        []int64 // insertion order, for AllEntries
	nextID       int64
	tokenMetrics []TokenMetric
	queryMetrics []QueryMetric
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]*entry.Entry),
		nextID:  1,
	}
}

// Backend reports BackendMemory.
func (m *MemoryStore) Backend() Backend { return BackendMemory }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// AppendEntry validates and stores a new entry with a monotonic id.
func (m *MemoryStore) AppendEntry(ctx context.Context, e *entry.Entry) (int64, error) {
	e.Sanitize()
	if err := e.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	stored := cloneEntry(e)
	stored.ID = id
	m.entries[id] = stored
	m.order = append(m.order, id)
	e.ID = id
	return id, nil
}

// UpdateEntry applies a partial mutation; false when the id is unknown.
func (m *MemoryStore) UpdateEntry(ctx context.Context, id int64, req UpdateRequest) (bool, error) {
	if req.Content != nil && req.AppendContent != nil {
		return false, &entry.ValidationError{Field: "content", Reason: "replace and append are mutually exclusive"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entries[id]
	if !ok {
		return false, nil
	}

	content := cur.Content
	switch {
	case req.Content != nil:
		content = *req.Content
	case req.AppendContent != nil:
		content = cur.Content + AppendMarker + *req.AppendContent
	}
	if err := entry.ValidateContent(content); err != nil {
		return false, err
	}

	meta := cur.Metadata
	if meta == nil {
		meta = entry.Metadata{}
	}
	merged := entry.Metadata{}
	for k, v := range meta {
		merged[k] = v
	}
	for k, v := range req.Metadata {
		merged[k] = v
	}
	if err := merged.Validate(); err != nil {
		return false, err
	}

	cur.Content = content
	cur.Metadata = merged
	if req.Embedding != nil {
		cur.Embedding = append([]byte(nil), req.Embedding...)
	}
	return true, nil
}

// GetEntry fetches an entry by id, nil when absent.
func (m *MemoryStore) GetEntry(ctx context.Context, id int64) (*entry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

// QueryByType returns entries of one type, newest first.
func (m *MemoryStore) QueryByType(ctx context.Context, fileType entry.FileType, limit int) ([]*entry.Entry, error) {
	return m.filtered(func(e *entry.Entry) bool {
		return e.FileType == fileType
	}, clampLimit(limit)), nil
}

// QueryByDateRange returns entries within [start, end], newest first. An
// empty fileType matches every type.
func (m *MemoryStore) QueryByDateRange(ctx context.Context, fileType entry.FileType, start, end time.Time, limit int) ([]*entry.Entry, error) {
	startStr := start.UTC().Format(time.RFC3339)
	endStr := end.UTC().Format(time.RFC3339)
	return m.filtered(func(e *entry.Entry) bool {
		if fileType != "" && e.FileType != fileType {
			return false
		}
		return e.Timestamp >= startStr && e.Timestamp <= endStr
	}, clampLimit(limit)), nil
}

// FullTextSearch matches term case-insensitively in content or tag.
func (m *MemoryStore) FullTextSearch(ctx context.Context, term string, limit int) ([]*entry.Entry, error) {
	needle := strings.ToLower(term)
	return m.filtered(func(e *entry.Entry) bool {
		return strings.Contains(strings.ToLower(e.Content), needle) ||
			strings.Contains(strings.ToLower(e.Tag), needle)
	}, clampLimit(limit)), nil
}

// GetRecent returns the newest count entries, optionally type-filtered.
func (m *MemoryStore) GetRecent(ctx context.Context, fileType entry.FileType, count int) ([]*entry.Entry, error) {
	return m.filtered(func(e *entry.Entry) bool {
		return fileType == "" || e.FileType == fileType
	}, clampLimit(count)), nil
}

// AllEntries returns every entry in id order.
func (m *MemoryStore) AllEntries(ctx context.Context) ([]*entry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entry.Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneEntry(m.entries[id]))
	}
	return out, nil
}

// EntryCount returns the number of stored entries.
func (m *MemoryStore) EntryCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// RecordTokenMetric appends one telemetry row.
func (m *MemoryStore) RecordTokenMetric(ctx context.Context, tm TokenMetric) error {
	if tm.Timestamp.IsZero() {
		tm.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenMetrics = append(m.tokenMetrics, tm)
	return nil
}

// RecordQueryMetric appends one telemetry row.
func (m *MemoryStore) RecordQueryMetric(ctx context.Context, qm QueryMetric) error {
	if qm.Timestamp.IsZero() {
		qm.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryMetrics = append(m.queryMetrics, qm)
	return nil
}

// PruneMetrics drops telemetry rows older than the cutoff.
func (m *MemoryStore) PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	keptTokens := m.tokenMetrics[:0]
	for _, tm := range m.tokenMetrics {
		if tm.Timestamp.Before(olderThan) {
			pruned++
			continue
		}
		keptTokens = append(keptTokens, tm)
	}
	m.tokenMetrics = keptTokens

	keptQueries := m.queryMetrics[:0]
	for _, qm := range m.queryMetrics {
		if qm.Timestamp.Before(olderThan) {
			pruned++
			continue
		}
		keptQueries = append(keptQueries, qm)
	}
	m.queryMetrics = keptQueries

	return pruned, nil
}

// filtered collects matching entries sorted newest first, bounded by limit.
func (m *MemoryStore) filtered(match func(*entry.Entry) bool, limit int) []*entry.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entry.Entry
	for _, id := range m.order {
		e := m.entries[id]
		if match(e) {
			out = append(out, cloneEntry(e))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// cloneEntry deep-copies an entry so callers cannot mutate stored state.
func cloneEntry(e *entry.Entry) *entry.Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = entry.Metadata{}
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.Embedding != nil {
		c.Embedding = append([]byte(nil), e.Embedding...)
	}
	return &c
}
