package entry

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError reports a malformed entry field. Validation failures are
// raised before anything reaches storage, so a rejected entry is never
// partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

var tagPattern = regexp.MustCompile(`^\[([A-Z][A-Z-]*):(\d{4}-\d{2}-\d{2})\]$`)

// ValidateTag checks the bracketed tag format [TYPE:YYYY-MM-DD]. The type
// portion must be uppercase and the date portion a real calendar date.
func ValidateTag(tag string) error {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return &ValidationError{Field: "tag", Reason: fmt.Sprintf("%q does not match [TYPE:YYYY-MM-DD]", tag)}
	}
	if _, err := time.Parse("2006-01-02", m[2]); err != nil {
		return &ValidationError{Field: "tag", Reason: fmt.Sprintf("%q is not a calendar date", m[2])}
	}
	return nil
}

// ValidateTimestamp checks that ts is a parseable RFC 3339 instant.
func ValidateTimestamp(ts string) error {
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		return &ValidationError{Field: "timestamp", Reason: fmt.Sprintf("%q is not RFC 3339", ts)}
	}
	return nil
}

// ValidateContent checks content size (1..MaxContentBytes bytes) and UTF-8
// well-formedness.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return &ValidationError{Field: "content", Reason: "content is empty"}
	}
	if len(content) > MaxContentBytes {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("content is %d bytes, limit is %d", len(content), MaxContentBytes)}
	}
	if !utf8.ValidString(content) {
		return &ValidationError{Field: "content", Reason: "content is not valid UTF-8"}
	}
	return nil
}

// unsafePatterns covers strings that must never be interpolated into paths
// or SQL. Parameterized queries are used everywhere regardless; this is a
// boundary check so garbage is rejected with a clear reason instead of being
// stored.
var unsafePatterns = []string{"../", "..\\", "\x00"}

// ValidateSafeString rejects values carrying path traversal sequences or
// NUL bytes.
func ValidateSafeString(field, value string) error {
	for _, p := range unsafePatterns {
		if strings.Contains(value, p) {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("contains unsafe sequence %q", p)}
		}
	}
	return nil
}

// Validate checks every field of an entry. It returns the first violation
// found, in field order, as a *ValidationError.
func (e *Entry) Validate() error {
	if !e.FileType.Valid() {
		return &ValidationError{Field: "file_type", Reason: fmt.Sprintf("unknown file type %q", e.FileType)}
	}
	if err := ValidateTimestamp(e.Timestamp); err != nil {
		return err
	}
	if err := ValidateTag(e.Tag); err != nil {
		return err
	}
	if err := ValidateContent(e.Content); err != nil {
		return err
	}
	if err := ValidateSafeString("tag", e.Tag); err != nil {
		return err
	}
	if err := e.Metadata.Validate(); err != nil {
		return err
	}
	return nil
}

// Sanitize normalizes an entry in place: trims surrounding whitespace from
// the tag, rewrites the timestamp in UTC so stored timestamps sort
// lexicographically by instant, and fills a missing tag from the file type
// and timestamp. Content is left untouched.
func (e *Entry) Sanitize() {
	e.Tag = strings.TrimSpace(e.Tag)
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	} else if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		e.Timestamp = ts.UTC().Format(time.RFC3339)
	}
	if e.Tag == "" {
		if ts, err := e.ParsedTime(); err == nil {
			e.Tag = TagFor(e.FileType, ts)
		}
	}
	if e.Metadata == nil {
		e.Metadata = Metadata{}
	}
}

func tagTypeLabel(fileType FileType) string {
	return strings.ToUpper(string(fileType))
}
