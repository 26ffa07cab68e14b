package engine

import "context"

// Engine abstracts the local model server. The reader, the reranker and the
// embedding retriever depend on this interface instead of a concrete client.
type Engine interface {
	// Chat runs one chat completion and returns the assistant's reply.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// EmbedMany embeds several texts, returning vectors in input order.
	EmbedMany(ctx context.Context, model string, texts []string) ([][]float32, error)

	// IsRunning reports whether the model server is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
