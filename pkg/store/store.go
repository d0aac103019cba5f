// Package store provides the durable entry store with versioned schema
// migration, backend probing, and graceful in-memory fallback.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/engramdb/engram/pkg/entry"
)

// Backend identifies which storage engine an open store is using. Callers
// are not told which backend serves them except through Backend().
type Backend string

const (
	// BackendSQLite is the portable pure-Go SQLite engine (modernc.org/sqlite).
	BackendSQLite Backend = "sqlite"
	// BackendSQLiteCGO is the native-binding SQLite engine (mattn/go-sqlite3),
	// available when built with the sqlite_cgo tag.
	BackendSQLiteCGO Backend = "sqlite-cgo"
	// BackendMemory is the in-memory fallback used when no SQLite engine
	// can be opened. Nothing persists across restarts.
	BackendMemory Backend = "memory"
)

// Query limits. Callers asking for more than MaxQueryLimit are clamped.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 1000
)

// StorageError reports a backend failure. It is surfaced to the caller and
// never crashes the process; backend degradation happens at init time only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UpdateRequest describes a partial entry mutation. At most one of Content
// and AppendContent may be set. Updates never delete the underlying row.
type UpdateRequest struct {
	// Content replaces the entry content entirely.
	Content *string
	// AppendContent appends to the existing content behind a marker.
	AppendContent *string
	// Metadata keys are merged over the stored bag.
	Metadata entry.Metadata
	// Embedding attaches or replaces the quantized vector.
	Embedding []byte
}

// AppendMarker separates original content from appended blocks.
const AppendMarker = "\n\n---\n\n"

// TokenMetric is one append-only token-usage telemetry row.
type TokenMetric struct {
	Timestamp     time.Time
	Model         string
	InputTokens   int
	OutputTokens  int
	TotalTokens   int
	ContextStatus string
}

// QueryMetric is one append-only query-performance telemetry row.
type QueryMetric struct {
	Timestamp   time.Time
	Operation   string
	Elapsed     time.Duration
	ResultCount int
}

// EntryStore is the storage contract. All query operations return entries
// ordered by timestamp descending and bounded by limit (DefaultQueryLimit
// when limit <= 0, clamped to MaxQueryLimit).
type EntryStore interface {
	// AppendEntry validates and persists a new entry, returning its
	// store-assigned id. The entry's ID field is also set on success.
	AppendEntry(ctx context.Context, e *entry.Entry) (int64, error)

	// UpdateEntry applies a partial mutation. Returns false when no entry
	// with the given id exists.
	UpdateEntry(ctx context.Context, id int64, req UpdateRequest) (bool, error)

	// GetEntry fetches a single entry, nil if absent.
	GetEntry(ctx context.Context, id int64) (*entry.Entry, error)

	QueryByType(ctx context.Context, fileType entry.FileType, limit int) ([]*entry.Entry, error)
	QueryByDateRange(ctx context.Context, fileType entry.FileType, start, end time.Time, limit int) ([]*entry.Entry, error)
	FullTextSearch(ctx context.Context, term string, limit int) ([]*entry.Entry, error)
	GetRecent(ctx context.Context, fileType entry.FileType, count int) ([]*entry.Entry, error)

	// AllEntries streams every stored entry in id order, for export and
	// index rebuilds.
	AllEntries(ctx context.Context) ([]*entry.Entry, error)

	RecordTokenMetric(ctx context.Context, m TokenMetric) error
	RecordQueryMetric(ctx context.Context, m QueryMetric) error
	// PruneMetrics drops telemetry rows older than the cutoff. Telemetry
	// is never correctness-relevant, so pruning is always safe.
	PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error)

	EntryCount(ctx context.Context) (int64, error)
	Backend() Backend
	Close() error
}

// Options configure Open.
type Options struct {
	// BackupDir overrides the default .backup directory beside the store
	// file. Used by migration and recovery.
	BackupDir string
	Logger    *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithBackupDir overrides the backup directory.
func WithBackupDir(dir string) Option {
	return func(o *Options) { o.BackupDir = dir }
}

// WithLogger sets the logger used for probe and migration reporting.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Open probes the available backends in order and returns the first one
// that initializes: SQLite engines first, then the in-memory fallback so
// the rest of the system degrades gracefully rather than failing outright.
// The probe happens once; the chosen backend serves the whole instance.
func Open(path string, opts ...Option) (EntryStore, error) {
	o := Options{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	for _, d := range sqliteDrivers {
		s, err := openSQLite(d, path, o)
		if err != nil {
			o.Logger.Warn("backend unavailable, probing next",
				"backend", d.backend, "path", path, "error", err)
			continue
		}
		o.Logger.Debug("backend selected", "backend", d.backend, "path", path)
		return s, nil
	}

	o.Logger.Warn("no durable backend available, falling back to memory store", "path", path)
	return NewMemoryStore(), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
