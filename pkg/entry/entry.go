// Package entry defines the memory entry model and its validation rules.
package entry

import (
	"fmt"
	"time"
)

// FileType classifies an entry. The set is closed: anything outside it is
// rejected at validation time.
type FileType string

const (
	TypeContext  FileType = "context"
	TypeDecision FileType = "decision"
	TypeProgress FileType = "progress"
	TypePattern  FileType = "pattern"
	TypeBrief    FileType = "brief"

	// Phase report variants, one per research phase.
	TypePhaseResearch   FileType = "phase-research"
	TypePhasePlanning   FileType = "phase-planning"
	TypePhaseExecution  FileType = "phase-execution"
	TypePhaseCheckpoint FileType = "phase-checkpoint"
)

// AllFileTypes lists every valid file type in priority-table order.
var AllFileTypes = []FileType{
	TypeContext,
	TypeDecision,
	TypeProgress,
	TypePattern,
	TypeBrief,
	TypePhaseResearch,
	TypePhasePlanning,
	TypePhaseExecution,
	TypePhaseCheckpoint,
}

// Valid reports whether t is a member of the closed file-type set.
func (t FileType) Valid() bool {
	for _, ft := range AllFileTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// MaxContentBytes is the inclusive upper bound on entry content size.
const MaxContentBytes = 1_000_000

// Entry is the atomic unit of memory: one typed, tagged, timestamped record.
type Entry struct {
	// ID is assigned by the store on append and is immutable afterwards.
	// IDs increase monotonically across the lifetime of a store file.
	ID int64

	FileType  FileType
	Timestamp string // RFC 3339 UTC
	Tag       string // [TYPE:YYYY-MM-DD]
	Content   string
	Metadata  Metadata

	// Embedding holds the quantized vector once the embedding service has
	// attached it. Nil until then; callers needing the vector immediately
	// must wait or poll.
	Embedding []byte
}

// ParsedTime returns the entry timestamp as a time.Time.
func (e *Entry) ParsedTime() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", e.Timestamp, err)
	}
	return ts, nil
}

// New creates an entry stamped with the current UTC time and a matching tag.
func New(fileType FileType, content string) *Entry {
	now := time.Now().UTC()
	return &Entry{
		FileType:  fileType,
		Timestamp: now.Format(time.RFC3339),
		Tag:       TagFor(fileType, now),
		Content:   content,
		Metadata:  Metadata{},
	}
}

// TagFor builds the canonical bracketed tag for a type and date.
func TagFor(fileType FileType, at time.Time) string {
	return fmt.Sprintf("[%s:%s]", tagTypeLabel(fileType), at.UTC().Format("2006-01-02"))
}
