package retrieval

import (
	"context"
	"fmt"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/storage"
)

// Passage is a retrieved document with its relevance score. Scores are only
// comparable within one retrieval mode.
type Passage struct {
	domain.Document
	Score float64
}

// Retriever returns the passages most relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// TextSearcher is the keyword search side of the document store.
type TextSearcher interface {
	SearchBM25(ctx context.Context, query string, limit int) ([]storage.ScoredDocument, error)
}

// DocumentReader loads documents by ID, preserving the order of ids.
type DocumentReader interface {
	GetDocuments(ctx context.Context, ids []string) ([]domain.Document, error)
}

var (
	_ Retriever = (*BM25Retriever)(nil)
	_ Retriever = (*EmbeddingRetriever)(nil)
)

// BM25Retriever ranks documents with the store's full-text index.
type BM25Retriever struct {
	search TextSearcher
}

func NewBM25Retriever(s TextSearcher) *BM25Retriever {
	return &BM25Retriever{search: s}
}

func (r *BM25Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	hits, err := r.search.SearchBM25(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}
	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = Passage{Document: h.Document, Score: h.Score}
	}
	return out, nil
}

// EmbeddingRetriever embeds the query and ranks documents by cosine
// similarity of their stored vectors.
type EmbeddingRetriever struct {
	embedder *Embedder
	vectors  VectorStore
	docs     DocumentReader
}

func NewEmbeddingRetriever(embedder *Embedder, vectors VectorStore, docs DocumentReader) *EmbeddingRetriever {
	return &EmbeddingRetriever{embedder: embedder, vectors: vectors, docs: docs}
}

func (r *EmbeddingRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.vectors.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	ids := make([]string, len(scored))
	scores := make(map[string]float64, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
		scores[s.ID] = float64(s.Score)
	}

	docs, err := r.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	out := make([]Passage, 0, len(docs))
	for _, d := range docs {
		out = append(out, Passage{Document: d, Score: scores[d.ID]})
	}
	return out, nil
}
