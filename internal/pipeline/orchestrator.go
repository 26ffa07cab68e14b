// Package pipeline runs the QA pipeline: ingest the locators, index the
// documents, answer every query in order and build the QA records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/metrics"
)

// State is a step of a run.
type State string

const (
	StateStart     State = "START"
	StateIngested  State = "INGESTED"
	StateIndexed   State = "INDEXED"
	StateInferring State = "INFERRING"
	StateFormatted State = "FORMATTED"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Ingester turns locators into documents.
type Ingester interface {
	Ingest(ctx context.Context, locators []string, cfg domain.IngestConfig) ([]domain.Document, error)
	ArtifactsDir() string
}

// Indexer writes documents into the store with overwrite semantics.
type Indexer interface {
	Index(ctx context.Context, docs []domain.Document) error
}

// AnswerService answers one query with at most maxAnswers candidates.
type AnswerService interface {
	Answer(ctx context.Context, query, modelRef string, maxAnswers int) ([]domain.CandidateAnswer, error)
}

// Request is the input of one run.
type Request struct {
	Locators   []string
	Queries    []string
	ModelRef   string
	MaxAnswers int // 0 means 1
	Ingest     domain.IngestConfig
}

// CompletionReport is handed to the completion hook when a run ends.
type CompletionReport struct {
	ArtifactsDir string
	State        State
	Err          error
	Duration     time.Duration
}

// Orchestrator runs requests through ingestion, indexing and inference.
type Orchestrator struct {
	ingester   Ingester
	indexer    Indexer
	service    AnswerService
	onComplete func(CompletionReport)
	onState    func(State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCompletionHook registers fn to be called exactly once at the end of
// every Run, on success and on failure.
func WithCompletionHook(fn func(CompletionReport)) Option {
	return func(o *Orchestrator) { o.onComplete = fn }
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// New creates an Orchestrator.
func New(ing Ingester, idx Indexer, svc AnswerService, opts ...Option) *Orchestrator {
	o := &Orchestrator{ingester: ing, indexer: idx, service: svc}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes req. On success it returns one record per query, in query
// order. On failure no records are returned and the error is the typed
// error raised by the failing stage.
func (o *Orchestrator) Run(ctx context.Context, req Request) (records []domain.Record, err error) {
	start := time.Now()
	state := StateStart
	o.transition(&state, StateStart)

	ctx, endRun := metrics.StartStage(ctx, "run",
		attribute.Int("pageqa.locators", len(req.Locators)),
		attribute.Int("pageqa.queries", len(req.Queries)),
	)
	defer func() {
		if err != nil {
			records = nil
			slog.Error("run failed", "state", state, "error", err)
			o.transition(&state, StateFailed)
		}
		endRun(err)
		metrics.RunFinished(string(state))
		if o.onComplete != nil {
			o.onComplete(CompletionReport{
				ArtifactsDir: o.ingester.ArtifactsDir(),
				State:        state,
				Err:          err,
				Duration:     time.Since(start),
			})
		}
	}()

	maxAnswers, err := validate(req)
	if err != nil {
		return nil, err
	}

	docs, err := o.ingest(ctx, req)
	if err != nil {
		return nil, err
	}
	o.transition(&state, StateIngested)

	if err := o.index(ctx, docs); err != nil {
		return nil, err
	}
	o.transition(&state, StateIndexed)

	answers := make([][]domain.CandidateAnswer, len(req.Queries))
	for i, q := range req.Queries {
		o.transition(&state, StateInferring)
		cands, err := o.infer(ctx, q, req.ModelRef, maxAnswers)
		if err != nil {
			return nil, err
		}
		answers[i] = cands
	}

	records = make([]domain.Record, len(req.Queries))
	for i, q := range req.Queries {
		records[i] = BuildRecord(q, answers[i])
		metrics.Answered(records[i].NoAnswer)
	}
	o.transition(&state, StateFormatted)

	slog.Info("run complete", "queries", len(records), "documents", len(docs), "duration", time.Since(start))
	o.transition(&state, StateDone)
	return records, nil
}

func validate(req Request) (int, error) {
	if len(req.Locators) == 0 {
		return 0, &domain.IngestionError{Err: domain.ErrNoLocators}
	}
	if len(req.Queries) == 0 {
		return 0, domain.ErrNoQueries
	}
	switch {
	case req.MaxAnswers == 0:
		return 1, nil
	case req.MaxAnswers < 0:
		return 0, domain.ErrInvalidMaxAnswers
	}
	return req.MaxAnswers, nil
}

func (o *Orchestrator) ingest(ctx context.Context, req Request) (docs []domain.Document, err error) {
	ctx, end := metrics.StartStage(ctx, "ingest")
	defer func() { end(err) }()

	docs, err = o.ingester.Ingest(ctx, req.Locators, req.Ingest)
	if err != nil {
		var ie *domain.IngestionError
		if !errors.As(err, &ie) {
			err = &domain.IngestionError{Err: err}
		}
		return nil, err
	}
	slog.Info("ingested", "locators", len(req.Locators), "documents", len(docs))
	return docs, nil
}

func (o *Orchestrator) index(ctx context.Context, docs []domain.Document) (err error) {
	ctx, end := metrics.StartStage(ctx, "index", attribute.Int("pageqa.documents", len(docs)))
	defer func() { end(err) }()

	if err = o.indexer.Index(ctx, docs); err != nil {
		var se *domain.StoreUnavailableError
		if !errors.As(err, &se) {
			err = &domain.StoreUnavailableError{Op: "index", Err: err}
		}
		return err
	}
	metrics.DocumentsIndexed(len(docs))
	slog.Debug("indexed", "documents", len(docs))
	return nil
}

func (o *Orchestrator) infer(ctx context.Context, query, modelRef string, maxAnswers int) (cands []domain.CandidateAnswer, err error) {
	ctx, end := metrics.StartStage(ctx, "infer", attribute.String("pageqa.query", query))
	defer func() { end(err) }()

	cands, err = o.service.Answer(ctx, query, modelRef, maxAnswers)
	if err != nil {
		var ie *domain.InferenceError
		if !errors.As(err, &ie) {
			err = &domain.InferenceError{Query: query, Err: err}
		}
		return nil, err
	}
	if len(cands) > maxAnswers {
		return nil, &domain.InferenceError{
			Query: query,
			Err:   fmt.Errorf("service returned %d candidates, at most %d allowed", len(cands), maxAnswers),
		}
	}
	slog.Debug("answered", "query", query, "candidates", len(cands))
	return cands, nil
}

func (o *Orchestrator) transition(state *State, next State) {
	*state = next
	if o.onState != nil {
		o.onState(next)
	}
}

// BuildRecord builds the QA record for query from its ranked candidates.
// The top candidate fills the record and the rest become alternatives. No
// candidates yields the no-answer sentinel.
func BuildRecord(query string, cands []domain.CandidateAnswer) domain.Record {
	if len(cands) == 0 {
		return domain.Record{Title: domain.RecordTitle, Query: query, NoAnswer: true}
	}
	top := cands[0]
	r := domain.Record{
		Title:       domain.RecordTitle,
		Query:       query,
		DocumentID:  top.DocumentID,
		AnswerText:  top.Text,
		Context:     top.Context,
		StartOffset: top.StartOffset,
		EndOffset:   top.EndOffset,
		Confidence:  top.Score,
	}
	if len(cands) > 1 {
		r.Alternatives = append([]domain.CandidateAnswer(nil), cands[1:]...)
	}
	return r
}
