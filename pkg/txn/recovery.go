package txn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/engramdb/engram/pkg/store"
)

// Corruption classifies a storage error against known SQLite failure
// signatures.
type Corruption struct {
	Detected bool
	// Recoverable means restoring a backup can plausibly fix it. Disk-level
	// I/O failures are not recoverable by replacing the file.
	Recoverable bool
	Signature   string
}

// Error signatures grouped by recoverability. Lock contention is listed as
// recoverable: it clears on its own and never warrants abandoning the file.
var (
	recoverableSignatures = []string{
		"database disk image is malformed",
		"file is not a database",
		"file is encrypted or is not a database",
		"database is locked",
		"database table is locked",
	}
	unrecoverableSignatures = []string{
		"disk i/o error",
		"input/output error",
	}
)

// DetectCorruption inspects err for corruption signatures. A nil error or
// an unrecognized one reports no corruption.
func DetectCorruption(err error) Corruption {
	if err == nil {
		return Corruption{}
	}
	msg := strings.ToLower(err.Error())

	for _, sig := range unrecoverableSignatures {
		if strings.Contains(msg, sig) {
			return Corruption{Detected: true, Recoverable: false, Signature: sig}
		}
	}
	for _, sig := range recoverableSignatures {
		if strings.Contains(msg, sig) {
			return Corruption{Detected: true, Recoverable: true, Signature: sig}
		}
	}
	return Corruption{}
}

// VerifyIntegrity runs the storage engine's structural check against the
// store file.
func VerifyIntegrity(ctx context.Context, path string) error {
	return store.CheckIntegrity(ctx, path)
}

// AttemptRecovery restores the newest backup over the store file. Returns
// false with no error when no backup exists; the caller decides whether to
// start fresh. The damaged file is preserved beside the store with a
// .corrupt suffix.
func AttemptRecovery(storePath, backupDir string, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	latest, err := store.LatestBackup(backupDir, filepath.Base(storePath))
	if err != nil {
		return false, fmt.Errorf("failed to locate backup: %w", err)
	}
	if latest == "" {
		logger.Warn("no backup available for recovery", "path", storePath)
		return false, nil
	}

	if _, err := os.Stat(storePath); err == nil {
		corruptPath := storePath + ".corrupt"
		if err := os.Rename(storePath, corruptPath); err != nil {
			return false, fmt.Errorf("failed to set aside damaged file: %w", err)
		}
		logger.Info("damaged store file set aside", "path", corruptPath)
	}

	if err := copyFile(latest, storePath); err != nil {
		return false, fmt.Errorf("failed to restore backup: %w", err)
	}

	logger.Info("store restored from backup", "backup", latest, "path", storePath)
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
