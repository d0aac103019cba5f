package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramdb/engram/pkg/entry"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engram.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	sq, ok := s.(*SQLiteStore)
	if !ok {
		t.Fatalf("expected SQLite backend, got %s", s.Backend())
	}
	return sq
}

func testEntry(fileType entry.FileType, content string) *entry.Entry {
	e := entry.New(fileType, content)
	return e
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	e := testEntry(entry.TypeDecision, "use copy-and-swap for schema rebuilds")
	e.Metadata = entry.Metadata{
		entry.MetaProgressStatus: entry.StatusDone,
		entry.MetaPhase:          entry.PhasePlanning,
		entry.MetaDomains:        []string{"storage"},
		"ticket":                 "ENG-17",
	}

	id, err := s.AppendEntry(ctx, e)
	if err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	results, err := s.QueryByType(ctx, entry.TypeDecision, 10)
	if err != nil {
		t.Fatalf("QueryByType failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ID != id {
		t.Errorf("ID mismatch: got %d, want %d", got.ID, id)
	}
	if got.FileType != entry.TypeDecision {
		t.Errorf("FileType mismatch: got %s", got.FileType)
	}
	if got.Content != e.Content {
		t.Errorf("Content mismatch: got %q", got.Content)
	}
	if got.Tag != e.Tag {
		t.Errorf("Tag mismatch: got %q, want %q", got.Tag, e.Tag)
	}
	if got.Timestamp != e.Timestamp {
		t.Errorf("Timestamp mismatch: got %q, want %q", got.Timestamp, e.Timestamp)
	}
	if got.Metadata.ProgressStatus() != entry.StatusDone {
		t.Errorf("progress_status mismatch: got %q", got.Metadata.ProgressStatus())
	}
	if got.Metadata.Phase() != entry.PhasePlanning {
		t.Errorf("phase mismatch: got %q", got.Metadata.Phase())
	}
	if got.Metadata["ticket"] != "ENG-17" {
		t.Errorf("passthrough key lost: got %v", got.Metadata["ticket"])
	}
}

func TestAppendEntry_RejectsInvalid(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	e := testEntry(entry.FileType("journal"), "bad type")
	if _, err := s.AppendEntry(ctx, e); err == nil {
		t.Fatal("expected validation error for unknown file type")
	}

	count, err := s.EntryCount(ctx)
	if err != nil {
		t.Fatalf("EntryCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("rejected entry reached storage: count=%d", count)
	}
}

func TestIDsMonotonic(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.AppendEntry(ctx, testEntry(entry.TypeProgress, fmt.Sprintf("step %d", i)))
		if err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
		if id <= last {
			t.Fatalf("ids not monotonic: %d after %d", id, last)
		}
		last = id
	}
}

func TestOffsetTimestampsSortByInstant(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	// 23:00+05:00 is 18:00Z, two hours before the second entry. Sorted
	// as raw strings it would wrongly come first.
	earlier := &entry.Entry{
		FileType:  entry.TypeContext,
		Timestamp: "2025-06-15T23:00:00+05:00",
		Content:   "earlier instant",
	}
	later := &entry.Entry{
		FileType:  entry.TypeContext,
		Timestamp: "2025-06-15T20:00:00Z",
		Content:   "later instant",
	}
	for _, e := range []*entry.Entry{earlier, later} {
		if _, err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
	}

	results, err := s.GetRecent(ctx, entry.TypeContext, 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}
	if results[0].Content != "later instant" {
		t.Errorf("expected the 20:00Z entry first, got %q", results[0].Content)
	}
	if results[1].Timestamp != "2025-06-15T18:00:00Z" {
		t.Errorf("expected offset timestamp stored in UTC, got %q", results[1].Timestamp)
	}
}

func TestQueryOrderingAndLimits(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := &entry.Entry{
			FileType:  entry.TypeContext,
			Timestamp: base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			Content:   fmt.Sprintf("snapshot %d", i),
		}
		e.Sanitize()
		if _, err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
	}

	results, err := s.QueryByType(ctx, entry.TypeContext, 3)
	if err != nil {
		t.Fatalf("QueryByType failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("limit not applied: got %d results", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Timestamp < results[i].Timestamp {
			t.Errorf("results not newest-first at index %d", i)
		}
	}
	if results[0].Content != "snapshot 4" {
		t.Errorf("expected newest entry first, got %q", results[0].Content)
	}
}

func TestQueryByDateRange(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	days := []string{"2025-03-01", "2025-03-05", "2025-03-10"}
	for _, d := range days {
		e := &entry.Entry{
			FileType:  entry.TypePattern,
			Timestamp: d + "T09:00:00Z",
			Content:   "pattern from " + d,
		}
		e.Sanitize()
		if _, err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
	}

	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	results, err := s.QueryByDateRange(ctx, entry.TypePattern, start, end, 0)
	if err != nil {
		t.Fatalf("QueryByDateRange failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result in range, got %d", len(results))
	}
	if results[0].Content != "pattern from 2025-03-05" {
		t.Errorf("wrong entry in range: %q", results[0].Content)
	}
}

func TestFullTextSearch(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	for _, c := range []string{"migrated the schema", "added vector search", "100% done"} {
		if _, err := s.AppendEntry(ctx, testEntry(entry.TypeProgress, c)); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
	}

	results, err := s.FullTextSearch(ctx, "vector", 10)
	if err != nil {
		t.Fatalf("FullTextSearch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}

	// LIKE wildcards in the term must match literally.
	results, err = s.FullTextSearch(ctx, "100%", 10)
	if err != nil {
		t.Fatalf("FullTextSearch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected literal %% match, got %d results", len(results))
	}
}

func TestUpdateEntry(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	e := testEntry(entry.TypeBrief, "initial brief")
	id, err := s.AppendEntry(ctx, e)
	if err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	// Append with marker.
	addendum := "follow-up notes"
	ok, err := s.UpdateEntry(ctx, id, UpdateRequest{AppendContent: &addendum})
	if err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if !ok {
		t.Fatal("expected update to apply")
	}

	got, err := s.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	want := "initial brief" + AppendMarker + "follow-up notes"
	if got.Content != want {
		t.Errorf("content mismatch after append: %q", got.Content)
	}

	// Full replace plus metadata merge.
	replacement := "rewritten brief"
	ok, err = s.UpdateEntry(ctx, id, UpdateRequest{
		Content:  &replacement,
		Metadata: entry.Metadata{entry.MetaProgressStatus: entry.StatusDeprecated},
	})
	if err != nil || !ok {
		t.Fatalf("UpdateEntry replace failed: ok=%v err=%v", ok, err)
	}

	got, err = s.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Content != "rewritten brief" {
		t.Errorf("content not replaced: %q", got.Content)
	}
	if !got.Metadata.Deprecated() {
		t.Error("metadata merge lost progress_status")
	}

	// Unknown id reports false without error.
	ok, err = s.UpdateEntry(ctx, 99999, UpdateRequest{Content: &replacement})
	if err != nil {
		t.Fatalf("UpdateEntry unknown id errored: %v", err)
	}
	if ok {
		t.Error("expected false for unknown id")
	}
}

func TestUpdateEntry_AttachEmbedding(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	id, err := s.AppendEntry(ctx, testEntry(entry.TypeContext, "pending embedding"))
	if err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	got, _ := s.GetEntry(ctx, id)
	if got.Embedding != nil {
		t.Fatal("embedding should be absent until attached")
	}

	blob := []byte{1, 2, 3, 4}
	ok, err := s.UpdateEntry(ctx, id, UpdateRequest{Embedding: blob})
	if err != nil || !ok {
		t.Fatalf("attach failed: ok=%v err=%v", ok, err)
	}

	got, _ = s.GetEntry(ctx, id)
	if len(got.Embedding) != 4 {
		t.Errorf("embedding not stored: %v", got.Embedding)
	}
}

func TestTokenAndQueryMetrics(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()

	err := s.RecordTokenMetric(ctx, TokenMetric{
		Model: "test-model", InputTokens: 120, OutputTokens: 30, TotalTokens: 150, ContextStatus: "healthy",
	})
	if err != nil {
		t.Fatalf("RecordTokenMetric failed: %v", err)
	}

	err = s.RecordQueryMetric(ctx, QueryMetric{Operation: "recall", Elapsed: 5 * time.Millisecond, ResultCount: 3})
	if err != nil {
		t.Fatalf("RecordQueryMetric failed: %v", err)
	}

	// Everything recorded so far is newer than the cutoff.
	pruned, err := s.PruneMetrics(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneMetrics failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("expected 0 pruned, got %d", pruned)
	}

	pruned, err = s.PruneMetrics(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneMetrics failed: %v", err)
	}
	if pruned < 2 {
		t.Errorf("expected at least 2 pruned, got %d", pruned)
	}
}

func TestBackendIntrospection(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	if s.Backend() != BackendSQLite && s.Backend() != BackendSQLiteCGO {
		t.Errorf("unexpected backend %s", s.Backend())
	}
}
