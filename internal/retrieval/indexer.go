package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/pageqa/internal/domain"
)

// DocumentWriter persists documents and their full-text entries.
type DocumentWriter interface {
	UpsertDocuments(ctx context.Context, docs []domain.Document) error
}

// Indexer writes documents into the store. With vectors attached it also
// embeds every written document so the embedding retriever can find it.
type Indexer struct {
	docs     DocumentWriter
	embedder *Embedder
	vectors  VectorStore
}

func NewIndexer(docs DocumentWriter) *Indexer {
	return &Indexer{docs: docs}
}

// WithVectors enables embedding of indexed documents.
func (ix *Indexer) WithVectors(embedder *Embedder, vectors VectorStore) *Indexer {
	ix.embedder = embedder
	ix.vectors = vectors
	return ix
}

// Index stores docs. A document whose ID is already present replaces the
// previous one. Any failure is reported as *domain.StoreUnavailableError.
func (ix *Indexer) Index(ctx context.Context, docs []domain.Document) error {
	docs = dedupeByID(docs)
	if len(docs) == 0 {
		return nil
	}

	if err := ix.docs.UpsertDocuments(ctx, docs); err != nil {
		return &domain.StoreUnavailableError{Op: "write documents", Err: err}
	}
	slog.Debug("indexed documents", "count", len(docs))

	if ix.embedder == nil || ix.vectors == nil {
		return nil
	}
	return ix.embed(ctx, docs)
}

func (ix *Indexer) embed(ctx context.Context, docs []domain.Document) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return &domain.StoreUnavailableError{Op: "embed documents", Err: err}
	}

	now := time.Now().UTC()
	vectors := make([]Vector, len(docs))
	for i, d := range docs {
		vectors[i] = Vector{ID: d.ID, Embedding: vecs[i], Model: ix.embedder.Model(), CreatedAt: now}
	}
	if err := ix.vectors.Upsert(ctx, vectors); err != nil {
		return &domain.StoreUnavailableError{Op: "write vectors", Err: err}
	}
	return nil
}

// dedupeByID keeps the last occurrence of each ID, in first-seen order.
func dedupeByID(docs []domain.Document) []domain.Document {
	pos := make(map[string]int, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}
