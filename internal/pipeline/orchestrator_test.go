package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/inference"
	"github.com/kalambet/pageqa/internal/ingest"
	"github.com/kalambet/pageqa/internal/retrieval"
)

var (
	_ Ingester      = (*ingest.Ingester)(nil)
	_ Indexer       = (*retrieval.Indexer)(nil)
	_ AnswerService = (*inference.Service)(nil)
)

type stubIngester struct {
	docs  []domain.Document
	err   error
	calls int
}

func (s *stubIngester) Ingest(_ context.Context, _ []string, _ domain.IngestConfig) ([]domain.Document, error) {
	s.calls++
	return s.docs, s.err
}

func (s *stubIngester) ArtifactsDir() string { return "crawled_files" }

type stubIndexer struct {
	err     error
	calls   int
	indexed []domain.Document
	// inferCalls records how many inference calls had happened when Index ran.
	inferCalls *int
	seenInfer  int
}

func (s *stubIndexer) Index(_ context.Context, docs []domain.Document) error {
	s.calls++
	s.indexed = docs
	if s.inferCalls != nil {
		s.seenInfer = *s.inferCalls
	}
	return s.err
}

type stubService struct {
	answers map[string][]domain.CandidateAnswer
	err     error
	calls   int
	queries []string
	maxSeen []int
}

func (s *stubService) Answer(_ context.Context, query, _ string, maxAnswers int) ([]domain.CandidateAnswer, error) {
	s.calls++
	s.queries = append(s.queries, query)
	s.maxSeen = append(s.maxSeen, maxAnswers)
	if s.err != nil {
		return nil, s.err
	}
	return s.answers[query], nil
}

type hookRecorder struct {
	reports []CompletionReport
}

func (h *hookRecorder) hook(r CompletionReport) { h.reports = append(h.reports, r) }

func docs() []domain.Document {
	return []domain.Document{{ID: "doc1", Content: "The answer is 42."}}
}

func TestRunFixedCandidate(t *testing.T) {
	svc := &stubService{answers: map[string][]domain.CandidateAnswer{
		"What is the answer?": {{Text: "42", DocumentID: "doc1", Context: "The answer is 42.", StartOffset: 14, EndOffset: 16, Score: 0.9}},
	}}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{}, svc)

	got, err := o.Run(context.Background(), Request{
		Locators: []string{"https://example.com"},
		Queries:  []string{"What is the answer?"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	want := domain.Record{
		Title:       "Relevant information",
		Query:       "What is the answer?",
		DocumentID:  "doc1",
		AnswerText:  "42",
		Context:     "The answer is 42.",
		StartOffset: 14,
		EndOffset:   16,
		Confidence:  0.9,
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("record = %+v, want %+v", got[0], want)
	}
	if svc.maxSeen[0] != 1 {
		t.Errorf("max answers = %d, want default 1", svc.maxSeen[0])
	}
}

func TestRunPreservesQueryOrder(t *testing.T) {
	svc := &stubService{answers: map[string][]domain.CandidateAnswer{
		"Q1": {{Text: "A", DocumentID: "d1", Score: 0.2}},
		"Q2": {{Text: "B", DocumentID: "d2", Score: 0.8}},
	}}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{}, svc)

	got, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"Q1", "Q2"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Query != "Q1" || got[0].AnswerText != "A" || got[1].Query != "Q2" || got[1].AnswerText != "B" {
		t.Errorf("records = %+v, want Q1/A then Q2/B", got)
	}
	if !reflect.DeepEqual(svc.queries, []string{"Q1", "Q2"}) {
		t.Errorf("service saw %v, want [Q1 Q2]", svc.queries)
	}
}

func TestRunNoAnswerSentinel(t *testing.T) {
	svc := &stubService{answers: map[string][]domain.CandidateAnswer{
		"known": {{Text: "yes", DocumentID: "d", Score: 0.7}},
	}}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{}, svc)

	got, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"unknown", "known"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	want := domain.Record{Title: domain.RecordTitle, Query: "unknown", NoAnswer: true}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("sentinel = %+v, want %+v", got[0], want)
	}
	if got[1].NoAnswer || got[1].AnswerText != "yes" {
		t.Errorf("second record = %+v", got[1])
	}
}

func TestRunIngestionFailure(t *testing.T) {
	ing := &stubIngester{err: &domain.IngestionError{Locator: "https://bad.example", Err: errors.New("404")}}
	idx := &stubIndexer{}
	svc := &stubService{}
	h := &hookRecorder{}
	o := New(ing, idx, svc, WithCompletionHook(h.hook))

	got, err := o.Run(context.Background(), Request{Locators: []string{"https://bad.example"}, Queries: []string{"q"}})
	if got != nil {
		t.Errorf("got records %+v on failure", got)
	}
	var ie *domain.IngestionError
	if !errors.As(err, &ie) || ie.Locator != "https://bad.example" {
		t.Fatalf("err = %v, want the original *IngestionError", err)
	}
	if idx.calls != 0 || svc.calls != 0 {
		t.Errorf("index called %d times, infer called %d times; want 0, 0", idx.calls, svc.calls)
	}
	if len(h.reports) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(h.reports))
	}
	if h.reports[0].State != StateFailed || h.reports[0].ArtifactsDir != "crawled_files" || h.reports[0].Err != err {
		t.Errorf("report = %+v", h.reports[0])
	}
}

func TestRunWrapsUntypedIngestionError(t *testing.T) {
	o := New(&stubIngester{err: errors.New("disk full")}, &stubIndexer{}, &stubService{})
	_, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"q"}})
	var ie *domain.IngestionError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *IngestionError", err)
	}
}

func TestRunStoreFailure(t *testing.T) {
	storeErr := &domain.StoreUnavailableError{Op: "write documents", Err: errors.New("database is locked")}
	svc := &stubService{}
	h := &hookRecorder{}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{err: storeErr}, svc, WithCompletionHook(h.hook))

	_, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"q"}})
	if err != storeErr {
		t.Fatalf("err = %v, want the store error unmodified", err)
	}
	if svc.calls != 0 {
		t.Errorf("infer called %d times after index failure", svc.calls)
	}
	if len(h.reports) != 1 || h.reports[0].State != StateFailed {
		t.Errorf("reports = %+v", h.reports)
	}
}

func TestRunInferenceFailure(t *testing.T) {
	svc := &stubService{err: errors.New("connection refused")}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{}, svc)

	got, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"q1", "q2"}})
	if got != nil {
		t.Errorf("partial results returned: %+v", got)
	}
	var ie *domain.InferenceError
	if !errors.As(err, &ie) || ie.Query != "q1" {
		t.Fatalf("err = %v, want *InferenceError for q1", err)
	}
	if svc.calls != 1 {
		t.Errorf("infer called %d times, want 1 (abort after first failure)", svc.calls)
	}
}

func TestRunTooManyCandidates(t *testing.T) {
	svc := &stubService{answers: map[string][]domain.CandidateAnswer{
		"q": {{Text: "a"}, {Text: "b"}},
	}}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{}, svc)
	_, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"q"}, MaxAnswers: 1})
	var ie *domain.InferenceError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *InferenceError for contract breach", err)
	}
}

func TestRunAlternatives(t *testing.T) {
	svc := &stubService{answers: map[string][]domain.CandidateAnswer{
		"q": {{Text: "a", Score: 0.9}, {Text: "b", Score: 0.5}},
	}}
	o := New(&stubIngester{docs: docs()}, &stubIndexer{}, svc)
	got, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"q"}, MaxAnswers: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got[0].AnswerText != "a" || len(got[0].Alternatives) != 1 || got[0].Alternatives[0].Text != "b" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		is   error
	}{
		{"no locators", Request{Queries: []string{"q"}}, domain.ErrNoLocators},
		{"no queries", Request{Locators: []string{"u"}}, domain.ErrNoQueries},
		{"negative max answers", Request{Locators: []string{"u"}, Queries: []string{"q"}, MaxAnswers: -1}, domain.ErrInvalidMaxAnswers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &stubIngester{docs: docs()}
			h := &hookRecorder{}
			o := New(ing, &stubIndexer{}, &stubService{}, WithCompletionHook(h.hook))
			_, err := o.Run(context.Background(), tt.req)
			if !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
			if ing.calls != 0 {
				t.Error("ingester called for an invalid request")
			}
			if len(h.reports) != 1 {
				t.Errorf("hook fired %d times, want 1", len(h.reports))
			}
		})
	}

	var ie *domain.IngestionError
	_, err := New(&stubIngester{}, &stubIndexer{}, &stubService{}).Run(context.Background(), Request{Queries: []string{"q"}})
	if !errors.As(err, &ie) {
		t.Errorf("missing locators should be an *IngestionError, got %T", err)
	}
}

func TestRunStateSequence(t *testing.T) {
	var states []State
	h := &hookRecorder{}
	svc := &stubService{}
	idx := &stubIndexer{inferCalls: &svc.calls}
	o := New(&stubIngester{docs: docs()}, idx, svc,
		WithStateObserver(func(s State) { states = append(states, s) }),
		WithCompletionHook(h.hook),
	)

	if _, err := o.Run(context.Background(), Request{Locators: []string{"u"}, Queries: []string{"a", "b"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []State{StateStart, StateIngested, StateIndexed, StateInferring, StateInferring, StateFormatted, StateDone}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if idx.seenInfer != 0 {
		t.Errorf("inference ran before indexing completed")
	}
	if len(h.reports) != 1 || h.reports[0].State != StateDone || h.reports[0].Err != nil {
		t.Errorf("reports = %+v", h.reports)
	}
	if !reflect.DeepEqual(idx.indexed, docs()) {
		t.Errorf("indexed %+v, want ingested documents", idx.indexed)
	}
}

func TestBuildRecordCopiesAlternatives(t *testing.T) {
	cands := []domain.CandidateAnswer{{Text: "a"}, {Text: "b"}}
	r := BuildRecord("q", cands)
	cands[1].Text = "changed"
	if r.Alternatives[0].Text != "b" {
		t.Error("alternatives alias the candidate slice")
	}
}
