package engram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/engramdb/engram/pkg/entry"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/txn"
)

// Error type constants for classification
const (
	ErrTypeStorage    = "storage"
	ErrTypeCorruption = "corruption"
	ErrTypeValidation = "validation"
	ErrTypeEmbedding  = "embedding"
	ErrTypeConflict   = "conflict"
	ErrTypeTimeout    = "timeout"
	ErrTypeNetwork    = "network"
	ErrTypeUnknown    = "unknown"
)

// CorruptionError reports a store file that failed its integrity check and
// could not be restored.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("store file %s is corrupted: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// ClassifyError inspects an error and returns its type classification.
// This enables grouping errors by category in metrics and logs.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var validationErr *entry.ValidationError
	if errors.As(err, &validationErr) {
		return ErrTypeValidation
	}
	var conflictErr *txn.ConflictError
	if errors.As(err, &conflictErr) {
		return ErrTypeConflict
	}
	var corruptionErr *CorruptionError
	if errors.As(err, &corruptionErr) {
		return ErrTypeCorruption
	}
	if c := txn.DetectCorruption(err); c.Detected {
		return ErrTypeCorruption
	}

	errStrLower := strings.ToLower(err.Error())

	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(errStrLower, "timeout") ||
		strings.Contains(errStrLower, "deadline exceeded") {
		return ErrTypeTimeout
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return ErrTypeNetwork
	}
	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "connection reset") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "network is unreachable") ||
		strings.Contains(errStrLower, "dial tcp") {
		return ErrTypeNetwork
	}

	if strings.Contains(errStrLower, "embedding") ||
		strings.Contains(errStrLower, "api error") ||
		strings.Contains(errStrLower, "rate limit") {
		return ErrTypeEmbedding
	}

	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		return ErrTypeStorage
	}
	if strings.Contains(errStrLower, "sql") ||
		strings.Contains(errStrLower, "database") ||
		strings.Contains(errStrLower, "storage") ||
		strings.Contains(errStrLower, "constraint") {
		return ErrTypeStorage
	}

	if strings.Contains(errStrLower, "validation") ||
		strings.Contains(errStrLower, "invalid") ||
		strings.Contains(errStrLower, "required") ||
		strings.Contains(errStrLower, "must be") {
		return ErrTypeValidation
	}

	return ErrTypeUnknown
}
