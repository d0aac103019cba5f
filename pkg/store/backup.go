package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBackupDir returns the .backup directory beside a store file.
func DefaultBackupDir(storePath string) string {
	if isMemoryPath(storePath) {
		return ""
	}
	return filepath.Join(filepath.Dir(storePath), ".backup")
}

// CreateBackup copies the store file into dir as a timestamped backup and
// returns the backup path. The copy is synchronous: it completes, fsynced,
// before the caller proceeds with whatever risky operation prompted it.
func CreateBackup(storePath, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("backup directory not set")
	}
	src, err := os.Open(storePath)
	if err != nil {
		return "", fmt.Errorf("failed to open store file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Timestamp orders backups; the uuid suffix keeps two backups within
	// the same second from colliding.
	name := fmt.Sprintf("%s.%s.%s.bak",
		filepath.Base(storePath),
		time.Now().UTC().Format("20060102T150405"),
		uuid.New().String()[:8])
	dstPath := filepath.Join(dir, name)

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to copy store file: %w", err)
	}
	if err := dst.Sync(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to sync backup file: %w", err)
	}

	return dstPath, nil
}

// LatestBackup returns the newest backup of the named store file in dir, or
// "" when none exists.
func LatestBackup(dir, storeBase string) (string, error) {
	infos, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read backup directory: %w", err)
	}

	var candidates []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		if strings.HasPrefix(name, storeBase+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}

	// Names embed a sortable UTC timestamp.
	sort.Strings(candidates)
	return filepath.Join(dir, candidates[len(candidates)-1]), nil
}
