// Package inference answers a single query against the indexed documents.
package inference

import (
	"context"
	"log/slog"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/reranking"
	"github.com/kalambet/pageqa/internal/retrieval"
)

// DefaultTopK is how many passages are handed to the reader per query.
const DefaultTopK = 1

// Reader extracts candidate answers from passages.
type Reader interface {
	Read(ctx context.Context, query, model string, passages []retrieval.Passage) ([]domain.CandidateAnswer, error)
}

// Service retrieves passages for a query, optionally reranks them and asks
// the reader for answer spans.
type Service struct {
	retriever retrieval.Retriever
	reranker  reranking.Reranker
	reader    Reader
	topK      int
}

// Option configures a Service.
type Option func(*Service)

// WithReranker reorders and filters retrieved passages before reading.
func WithReranker(r reranking.Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// WithTopK sets the number of retrieved passages. Values below 1 are ignored.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// New creates a Service. Reranking is disabled unless WithReranker is given.
func New(retriever retrieval.Retriever, reader Reader, opts ...Option) *Service {
	s := &Service{
		retriever: retriever,
		reranker:  &reranking.NoOpReranker{},
		reader:    reader,
		topK:      DefaultTopK,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Answer returns at most maxAnswers candidates for query, best first. An
// empty result means no answer was found and is not an error. modelRef names
// the reader and reranker model; empty selects their defaults.
func (s *Service) Answer(ctx context.Context, query, modelRef string, maxAnswers int) ([]domain.CandidateAnswer, error) {
	if maxAnswers < 1 {
		return nil, &domain.InferenceError{Query: query, Err: domain.ErrInvalidMaxAnswers}
	}

	// Each passage yields at most one span, so fewer passages than maxAnswers
	// could never fill the answer list.
	passages, err := s.retriever.Retrieve(ctx, query, max(s.topK, maxAnswers))
	if err != nil {
		return nil, &domain.InferenceError{Query: query, Err: err}
	}
	if len(passages) == 0 {
		slog.Debug("no passages retrieved", "query", query)
		return nil, nil
	}

	reranked, err := s.reranker.Rerank(ctx, query, modelRef, passages)
	if err != nil {
		slog.Warn("reranking failed, using retrieval order", "query", query, "error", err)
	} else {
		passages = reranked
	}

	candidates, err := s.reader.Read(ctx, query, modelRef, passages)
	if err != nil {
		return nil, &domain.InferenceError{Query: query, Err: err}
	}
	if len(candidates) > maxAnswers {
		candidates = candidates[:maxAnswers]
	}
	return candidates, nil
}
