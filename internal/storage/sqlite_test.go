package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/pageqa/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("applied %d migrations, want 3", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, name := range []string{"documents", "documents_fts", "document_vectors", "runs"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count == 0 {
			t.Errorf("table %s not found", name)
		}
	}
}

func doc(id, content string) domain.Document {
	return domain.Document{
		ID:       id,
		Content:  content,
		Metadata: map[string]string{domain.MetaURL: "https://example.com/" + id},
	}
}

func TestUpsertAndGetDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocuments(ctx, []domain.Document{doc("d1", "Arya Stark is the daughter of Eddard Stark.")}); err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Content != "Arya Stark is the daughter of Eddard Stark." {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Source != "https://example.com/d1" {
		t.Errorf("Source = %q", got.Source)
	}
	if got.Metadata[domain.MetaURL] != "https://example.com/d1" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestUpsertOverwrites verifies that writing the same ID twice keeps one row
// and one full-text entry carrying the newest content.
func TestUpsertOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocuments(ctx, []domain.Document{doc("d1", "old text about wolves")}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDocuments(ctx, []domain.Document{doc("d1", "new text about dragons")}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountDocuments = %d, want 1", n)
	}

	var fts int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents_fts WHERE id = 'd1'").Scan(&fts); err != nil {
		t.Fatal(err)
	}
	if fts != 1 {
		t.Errorf("fts rows = %d, want 1", fts)
	}

	hits, err := s.SearchBM25(ctx, "wolves", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("stale content still searchable: %v", hits)
	}
	hits, err = s.SearchBM25(ctx, "dragons", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "d1" {
		t.Errorf("hits = %v, want d1", hits)
	}
}

func TestUpsertDropsStaleVector(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDocuments(ctx, []domain.Document{doc("d1", "text")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`INSERT INTO document_vectors (id, embedding, created_at) VALUES ('d1', x'00000000', '2024-01-01T00:00:00Z')`); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDocuments(ctx, []domain.Document{doc("d1", "text")}); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM document_vectors").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("vectors = %d, want 0", n)
	}
}

func TestSearchBM25Ranking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := []domain.Document{
		doc("a", "Eddard Stark is the father of Arya Stark. Arya has a sword called Needle."),
		doc("b", "The capital of the Seven Kingdoms is King's Landing."),
		doc("c", "Winterfell is the seat of House Stark."),
	}
	if err := s.UpsertDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchBM25(ctx, "Who is the father of Arya Stark?", 3)
	if err != nil {
		t.Fatalf("SearchBM25: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].ID != "a" {
		t.Errorf("top hit = %s, want a", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted by score: %v", hits)
		}
	}

	hits, err = s.SearchBM25(ctx, "Who is the father of Arya Stark?", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("limit 1 returned %d hits", len(hits))
	}
}

func TestSearchBM25NoTerms(t *testing.T) {
	s := openTestStore(t)
	hits, err := s.SearchBM25(context.Background(), "?!  ", 3)
	if err != nil {
		t.Fatalf("SearchBM25: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil", hits)
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"What is the answer?", `"what" OR "is" OR "the" OR "answer"`},
		{"stark STARK", `"stark"`},
		{`"quoted" AND -x`, `"quoted" OR "and" OR "x"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetDocumentsPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.UpsertDocuments(ctx, []domain.Document{doc("a", "one"), doc("b", "two"), doc("c", "three")}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDocuments(ctx, []string{"c", "missing", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("GetDocuments = %v", got)
	}
}

func TestListAndDeleteDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.UpsertDocuments(ctx, []domain.Document{doc("a", "alpha"), doc("b", "beta")}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListDocuments(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("ListDocuments = %d docs, want 2", len(list))
	}

	if err := s.DeleteDocument(ctx, "a"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := s.DeleteDocument(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	hits, err := s.SearchBM25(ctx, "alpha", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted document still searchable")
	}
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:        "run-1",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Locators:  []string{"https://example.com"},
		Queries:   []string{"What is the answer?"},
		ModelRef:  "phi3.5",
		State:     "DONE",
		Records: []domain.Record{{
			Title: domain.RecordTitle, Query: "What is the answer?", DocumentID: "doc1",
			AnswerText: "42", Context: "The answer is 42.", StartOffset: 14, EndOffset: 16, Confidence: 0.9,
		}},
		Duration: 1500 * time.Millisecond,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
	if got.State != "DONE" || got.ModelRef != "phi3.5" || got.Duration != 1500*time.Millisecond {
		t.Errorf("run = %+v", got)
	}
	if len(got.Records) != 1 || got.Records[0].AnswerText != "42" {
		t.Errorf("Records = %+v", got.Records)
	}
	if len(got.Locators) != 1 || got.Queries[0] != "What is the answer?" {
		t.Errorf("Locators/Queries = %v / %v", got.Locators, got.Queries)
	}

	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun missing err = %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		if err := s.SaveRun(ctx, Run{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute), State: "DONE"}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r3" || runs[1].ID != "r2" {
		t.Errorf("ListRuns = %v", runs)
	}
}
