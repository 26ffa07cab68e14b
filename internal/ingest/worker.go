package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/retrieval"
)

// DefaultBackfillBatch is how many documents one worker iteration embeds.
const DefaultBackfillBatch = 32

// DocumentSource loads stored documents by ID.
type DocumentSource interface {
	GetDocuments(ctx context.Context, ids []string) ([]domain.Document, error)
}

// VectorQueue lists documents that still need a vector and stores new ones.
type VectorQueue interface {
	MissingIDs(ctx context.Context, limit int) ([]string, error)
	Upsert(ctx context.Context, vectors []retrieval.Vector) error
}

// ContentEmbedder generates embeddings for text.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Worker embeds stored documents that have no vector yet, so documents
// indexed while embeddings were unavailable become reachable by the
// embedding retriever.
type Worker struct {
	docs     DocumentSource
	vectors  VectorQueue
	embedder ContentEmbedder
	poll     time.Duration
	batch    int
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(docs DocumentSource, vectors VectorQueue, embedder ContentEmbedder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		poll:     pollInterval,
		batch:    DefaultBackfillBatch,
		logger:   slog.Default(),
	}
}

// Run polls for documents without vectors until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("backfill iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce embeds one batch of documents without vectors.
// Returns true if a batch was stored.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	ids, err := w.vectors.MissingIDs(ctx, w.batch)
	if err != nil {
		return false, fmt.Errorf("listing documents without vectors: %w", err)
	}
	if len(ids) == 0 {
		return false, nil
	}

	docs, err := w.docs.GetDocuments(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("loading documents: %w", err)
	}
	if len(docs) == 0 {
		return false, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("embedding %d documents: %w", len(docs), err)
	}

	now := time.Now().UTC()
	vectors := make([]retrieval.Vector, len(docs))
	for i, d := range docs {
		vectors[i] = retrieval.Vector{ID: d.ID, Embedding: vecs[i], Model: w.embedder.Model(), CreatedAt: now}
	}
	if err := w.vectors.Upsert(ctx, vectors); err != nil {
		return false, fmt.Errorf("storing vectors: %w", err)
	}

	w.logger.Debug("backfilled vectors", "count", len(vectors))
	return true, nil
}
