package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the schema level this code expects. The stored
// schema_version row is read at startup and written only by migrate.
const CurrentSchemaVersion = 2

// A migration brings the schema from version-1 to version. Each step runs
// inside its own transaction; the schema_version row is updated in the same
// transaction so a crash never leaves a half-applied level recorded.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: migrateV1},
	{version: 2, apply: migrateV2},
}

// migrate brings the store up to CurrentSchemaVersion. Re-running against an
// already-migrated store is a no-op. When the store is behind and holds data,
// a timestamped backup copy is written under backupDir before anything is
// touched.
func (s *SQLiteStore) migrate(ctx context.Context, backupDir string) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if version == CurrentSchemaVersion {
		return nil
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	// Fresh stores have nothing worth backing up. Anything else gets a
	// pre-migration copy, synchronously, before the first step runs.
	if version > 0 && !isMemoryPath(s.path) {
		backupPath, err := CreateBackup(s.path, backupDir)
		if err != nil {
			return fmt.Errorf("failed to create pre-migration backup: %w", err)
		}
		s.logger.Info("created pre-migration backup",
			"from_version", version, "to_version", CurrentSchemaVersion, "backup", backupPath)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", m.version, err)
		}
		s.logger.Debug("applied schema migration", "version", m.version)
	}

	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to clear schema_version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// schemaVersion reads the single-row marker. A missing row means version 0
// (fresh store).
func (s *SQLiteStore) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// migrateV1 creates the base schema: the entries table with its query
// indexes plus both telemetry tables.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_type TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			tag TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_entries_file_type ON entries(file_type);
		CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_entries_tag ON entries(tag);

		CREATE TABLE IF NOT EXISTS token_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			context_status TEXT
		);

		CREATE TABLE IF NOT EXISTS query_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			operation TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			result_count INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// migrateV2 denormalizes phase and progress_status out of the metadata JSON
// into their own columns. The entries table is rebuilt copy-and-swap: build
// the new shape, copy rows, verify the row counts match, and only then
// replace the original. On a count mismatch the transaction rolls back and
// the original table is untouched.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE entries_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_type TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			tag TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			phase TEXT NOT NULL DEFAULT '',
			progress_status TEXT NOT NULL DEFAULT '',
			embedding BLOB
		)
	`); err != nil {
		return fmt.Errorf("failed to create entries_new: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries_new (id, file_type, timestamp, tag, content, metadata, phase, progress_status, embedding)
		SELECT id, file_type, timestamp, tag, content, metadata,
		       COALESCE(json_extract(metadata, '$.phase'), ''),
		       COALESCE(json_extract(metadata, '$.progress_status'), ''),
		       embedding
		FROM entries
	`); err != nil {
		return fmt.Errorf("failed to copy rows: %w", err)
	}

	var oldCount, newCount int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&oldCount); err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries_new`).Scan(&newCount); err != nil {
		return fmt.Errorf("failed to count entries_new: %w", err)
	}
	if oldCount != newCount {
		return fmt.Errorf("row count mismatch after copy: had %d rows, copied %d; aborting without modifying original", oldCount, newCount)
	}

	if _, err := tx.ExecContext(ctx, `
		DROP TABLE entries;
		ALTER TABLE entries_new RENAME TO entries;

		CREATE INDEX IF NOT EXISTS idx_entries_file_type ON entries(file_type);
		CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_entries_tag ON entries(tag);
		CREATE INDEX IF NOT EXISTS idx_entries_progress_status ON entries(progress_status);
	`); err != nil {
		return fmt.Errorf("failed to swap entries table: %w", err)
	}

	return nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || path == ""
}
