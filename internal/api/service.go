package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/storage"
)

// Runner executes one QA run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) ([]domain.Record, error)
}

// Store is the part of the document store the API reads and writes.
type Store interface {
	SaveRun(ctx context.Context, r storage.Run) error
	GetRun(ctx context.Context, id string) (storage.Run, error)
	ListRuns(ctx context.Context, limit int) ([]storage.Run, error)
	ListDocuments(ctx context.Context, limit int) ([]storage.StoredDocument, error)
	DeleteDocument(ctx context.Context, id string) error
	SearchBM25(ctx context.Context, query string, limit int) ([]storage.ScoredDocument, error)
}

// RunStore persists run history.
type RunStore interface {
	SaveRun(ctx context.Context, r storage.Run) error
}

// Defaults fill in what an AnswerRequest leaves out.
type Defaults struct {
	ModelRef   string
	MaxAnswers int
	Queries    []string
	Ingest     domain.IngestConfig
}

// AnswerRequest is the body of POST /v1/answer and the arguments of the
// answer_questions tool.
type AnswerRequest struct {
	URLs       []string `json:"urls"`
	Queries    []string `json:"queries"`
	Model      string   `json:"model,omitempty"`
	MaxAnswers int      `json:"max_answers,omitempty"`
	FirstOnly  bool     `json:"first_only,omitempty"`
}

// RunResult is a finished run.
type RunResult struct {
	RunID   string
	Records []domain.Record
}

// RunService runs requests one at a time and records them in run history.
type RunService struct {
	mu       sync.Mutex
	runner   Runner
	runs     RunStore
	defaults Defaults
}

// NewRunService creates a RunService. runs may be nil to skip persistence.
func NewRunService(runner Runner, runs RunStore, defaults Defaults) *RunService {
	return &RunService{runner: runner, runs: runs, defaults: defaults}
}

// Request builds the pipeline request for req, applying defaults.
func (s *RunService) Request(req AnswerRequest) pipeline.Request {
	pr := pipeline.Request{
		Locators:   req.URLs,
		Queries:    req.Queries,
		ModelRef:   req.Model,
		MaxAnswers: req.MaxAnswers,
		Ingest:     s.defaults.Ingest,
	}
	if len(pr.Queries) == 0 {
		pr.Queries = s.defaults.Queries
	}
	if pr.ModelRef == "" {
		pr.ModelRef = s.defaults.ModelRef
	}
	if pr.MaxAnswers == 0 {
		pr.MaxAnswers = s.defaults.MaxAnswers
	}
	if req.FirstOnly {
		pr.Ingest.FirstOnly = true
	}
	return pr
}

// Answer runs req. The run is saved whether it succeeds or fails; a failure
// to save is logged and does not change the result.
func (s *RunService) Answer(ctx context.Context, req AnswerRequest) (RunResult, error) {
	pr := s.Request(req)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	start := time.Now()
	records, err := s.runner.Run(ctx, pr)

	if s.runs != nil {
		run := storage.Run{
			ID:        id,
			CreatedAt: start,
			Locators:  pr.Locators,
			Queries:   pr.Queries,
			ModelRef:  pr.ModelRef,
			State:     string(pipeline.StateDone),
			Records:   records,
			Duration:  time.Since(start),
		}
		if err != nil {
			run.State = string(pipeline.StateFailed)
			run.Error = err.Error()
		}
		// The request context may already be cancelled; history is still written.
		if saveErr := s.runs.SaveRun(context.WithoutCancel(ctx), run); saveErr != nil {
			slog.Warn("saving run failed", "run_id", id, "error", saveErr)
		}
	}

	if err != nil {
		return RunResult{RunID: id}, err
	}
	return RunResult{RunID: id, Records: records}, nil
}

// statusFor maps a run error onto an HTTP status and error type.
func statusFor(err error) (int, string) {
	var (
		ingestErr *domain.IngestionError
		storeErr  *domain.StoreUnavailableError
		inferErr  *domain.InferenceError
	)
	switch {
	case errors.Is(err, domain.ErrNoLocators),
		errors.Is(err, domain.ErrNoQueries),
		errors.Is(err, domain.ErrInvalidMaxAnswers):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &ingestErr):
		return http.StatusBadGateway, "ingestion_error"
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.As(err, &inferErr):
		return http.StatusBadGateway, "inference_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}
