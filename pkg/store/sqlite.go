package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/engramdb/engram/pkg/entry"
)

// SQLiteStore implements EntryStore over a SQLite database. Which driver
// serves it (pure-Go or cgo) is decided by the probe in Open; the rest of
// this file is driver-agnostic database/sql.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	backend Backend
	logger  *slog.Logger
}

func openSQLite(d sqliteDriver, path string, o Options) (*SQLiteStore, error) {
	db, err := sql.Open(d.driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY from the pool racing itself.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, backend: d.backend, logger: o.Logger}

	backupDir := o.BackupDir
	if backupDir == "" {
		backupDir = DefaultBackupDir(path)
	}
	if err := s.migrate(context.Background(), backupDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// Backend reports which engine was selected at init.
func (s *SQLiteStore) Backend() Backend { return s.backend }

// Close releases database resources.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for integrity verification.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the store file path.
func (s *SQLiteStore) Path() string { return s.path }

// AppendEntry validates and persists a new entry. The id comes from the
// AUTOINCREMENT rowid, so ordering is monotonic across the store lifetime.
func (s *SQLiteStore) AppendEntry(ctx context.Context, e *entry.Entry) (int64, error) {
	e.Sanitize()
	if err := e.Validate(); err != nil {
		return 0, err
	}

	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, &StorageError{Op: "append", Err: fmt.Errorf("failed to marshal metadata: %w", err)}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (file_type, timestamp, tag, content, metadata, phase, progress_status, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(e.FileType),
		e.Timestamp,
		e.Tag,
		e.Content,
		string(metadataJSON),
		e.Metadata.Phase(),
		e.Metadata.ProgressStatus(),
		e.Embedding,
	)
	if err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "append", Err: fmt.Errorf("failed to read insert id: %w", err)}
	}
	e.ID = id
	return id, nil
}

// UpdateEntry applies a partial mutation. The underlying row is never
// deleted; content edits replace or append, metadata keys merge over the
// stored bag.
func (s *SQLiteStore) UpdateEntry(ctx context.Context, id int64, req UpdateRequest) (bool, error) {
	if req.Content != nil && req.AppendContent != nil {
		return false, &entry.ValidationError{Field: "content", Reason: "replace and append are mutually exclusive"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &StorageError{Op: "update", Err: err}
	}
	defer tx.Rollback()

	cur, err := scanEntry(tx.QueryRowContext(ctx, selectColumns+` FROM entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "update", Err: err}
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
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if err := meta.Validate(); err != nil {
		return false, err
	}
	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return false, &StorageError{Op: "update", Err: fmt.Errorf("failed to marshal metadata: %w", err)}
	}

	embedding := cur.Embedding
	if req.Embedding != nil {
		embedding = req.Embedding
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE entries SET content = ?, metadata = ?, phase = ?, progress_status = ?, embedding = ?
		WHERE id = ?
	`, content, string(metadataJSON), meta.Phase(), meta.ProgressStatus(), embedding, id)
	if err != nil {
		return false, &StorageError{Op: "update", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return false, &StorageError{Op: "update", Err: err}
	}
	return true, nil
}

// GetEntry fetches a single entry by id. Returns nil, nil when absent.
func (s *SQLiteStore) GetEntry(ctx context.Context, id int64) (*entry.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectColumns+` FROM entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return e, nil
}

// QueryByType returns entries of one type, newest first.
func (s *SQLiteStore) QueryByType(ctx context.Context, fileType entry.FileType, limit int) ([]*entry.Entry, error) {
	return s.queryEntries(ctx, "query_by_type",
		selectColumns+` FROM entries WHERE file_type = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		string(fileType), clampLimit(limit))
}

// QueryByDateRange returns entries of one type whose timestamp falls within
// [start, end], newest first. An empty fileType matches every type.
func (s *SQLiteStore) QueryByDateRange(ctx context.Context, fileType entry.FileType, start, end time.Time, limit int) ([]*entry.Entry, error) {
	startStr := start.UTC().Format(time.RFC3339)
	endStr := end.UTC().Format(time.RFC3339)
	if fileType == "" {
		return s.queryEntries(ctx, "query_by_date_range",
			selectColumns+` FROM entries WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
			startStr, endStr, clampLimit(limit))
	}
	return s.queryEntries(ctx, "query_by_date_range",
		selectColumns+` FROM entries WHERE file_type = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		string(fileType), startStr, endStr, clampLimit(limit))
}

// FullTextSearch matches term case-insensitively against entry content and
// tags, newest first.
func (s *SQLiteStore) FullTextSearch(ctx context.Context, term string, limit int) ([]*entry.Entry, error) {
	pattern := "%" + escapeLike(term) + "%"
	return s.queryEntries(ctx, "full_text_search",
		selectColumns+` FROM entries
		 WHERE content LIKE ? ESCAPE '\' OR tag LIKE ? ESCAPE '\'
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		pattern, pattern, clampLimit(limit))
}

// GetRecent returns the newest count entries of one type. An empty fileType
// matches every type.
func (s *SQLiteStore) GetRecent(ctx context.Context, fileType entry.FileType, count int) ([]*entry.Entry, error) {
	if fileType == "" {
		return s.queryEntries(ctx, "get_recent",
			selectColumns+` FROM entries ORDER BY timestamp DESC, id DESC LIMIT ?`,
			clampLimit(count))
	}
	return s.queryEntries(ctx, "get_recent",
		selectColumns+` FROM entries WHERE file_type = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		string(fileType), clampLimit(count))
}

// AllEntries returns every stored entry in id order.
func (s *SQLiteStore) AllEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.queryEntries(ctx, "all_entries", selectColumns+` FROM entries ORDER BY id`)
}

// EntryCount returns the total number of stored entries.
func (s *SQLiteStore) EntryCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return count, nil
}

// RecordTokenMetric appends one token-usage telemetry row.
func (s *SQLiteStore) RecordTokenMetric(ctx context.Context, m TokenMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_metrics (timestamp, model, input_tokens, output_tokens, total_tokens, context_status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ts.UTC().Format(time.RFC3339), m.Model, m.InputTokens, m.OutputTokens, m.TotalTokens, m.ContextStatus)
	if err != nil {
		return &StorageError{Op: "record_token_metric", Err: err}
	}
	return nil
}

// RecordQueryMetric appends one query-performance telemetry row.
func (s *SQLiteStore) RecordQueryMetric(ctx context.Context, m QueryMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_metrics (timestamp, operation, elapsed_ms, result_count)
		VALUES (?, ?, ?, ?)
	`, ts.UTC().Format(time.RFC3339), m.Operation, m.Elapsed.Milliseconds(), m.ResultCount)
	if err != nil {
		return &StorageError{Op: "record_query_metric", Err: err}
	}
	return nil
}

// PruneMetrics drops telemetry rows older than the cutoff from both metric
// tables. Entries are never touched.
func (s *SQLiteStore) PruneMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := olderThan.UTC().Format(time.RFC3339)
	var total int64
	for _, table := range []string{"token_metrics", "query_metrics"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < ?`, cutoff)
		if err != nil {
			return total, &StorageError{Op: "prune_metrics", Err: err}
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

const selectColumns = `SELECT id, file_type, timestamp, tag, content, metadata, embedding`

func (s *SQLiteStore) queryEntries(ctx context.Context, op, query string, args ...any) ([]*entry.Entry, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	defer rows.Close()

	var entries []*entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &StorageError{Op: op, Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op, Err: fmt.Errorf("error iterating entries: %w", err)}
	}

	// Telemetry only; a failed insert never fails the query.
	if err := s.RecordQueryMetric(ctx, QueryMetric{
		Operation:   op,
		Elapsed:     time.Since(start),
		ResultCount: len(entries),
	}); err != nil {
		s.logger.Debug("query metric insert failed", "operation", op, "error", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*entry.Entry, error) {
	var e entry.Entry
	var fileType string
	var metadataJSON sql.NullString
	var embedding []byte

	if err := r.Scan(&e.ID, &fileType, &e.Timestamp, &e.Tag, &e.Content, &metadataJSON, &embedding); err != nil {
		return nil, err
	}

	e.FileType = entry.FileType(fileType)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if e.Metadata == nil {
		e.Metadata = entry.Metadata{}
	}
	if len(embedding) > 0 {
		e.Embedding = embedding
	}
	return &e, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
