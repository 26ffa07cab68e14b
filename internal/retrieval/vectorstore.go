package retrieval

import (
	"context"
	"time"
)

// VectorStore keeps one embedding per document ID and answers cosine
// similarity queries over them.
type VectorStore interface {
	// Upsert writes vectors, replacing any existing vector with the same ID.
	Upsert(ctx context.Context, vectors []Vector) error

	// Search returns the IDs of the topK vectors most similar to query,
	// best first.
	Search(ctx context.Context, query []float32, topK int) ([]ScoredID, error)

	// Delete removes the vector for id.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// MissingIDs lists up to limit stored documents that have no vector yet.
	MissingIDs(ctx context.Context, limit int) ([]string, error)
}

// Vector is the embedding of one document.
type Vector struct {
	ID        string
	Embedding []float32
	Model     string
	CreatedAt time.Time
}

// ScoredID is a search hit: a document ID with its cosine similarity.
type ScoredID struct {
	ID    string
	Score float32
}
