package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CheckIntegrity opens the store file with the first available SQLite
// engine and runs its integrity check. A nil return means the file is
// structurally sound.
func CheckIntegrity(ctx context.Context, path string) error {
	var lastErr error
	for _, d := range sqliteDrivers {
		err := checkWithDriver(ctx, d.driverName, path)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return fmt.Errorf("no SQLite engine compiled into this build")
	}
	return lastErr
}

func checkWithDriver(ctx context.Context, driverName, path string) error {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}
