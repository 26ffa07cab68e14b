package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kalambet/pageqa/internal/api"
	"github.com/kalambet/pageqa/internal/config"
	"github.com/kalambet/pageqa/internal/crawler"
	"github.com/kalambet/pageqa/internal/engine"
	"github.com/kalambet/pageqa/internal/inference"
	"github.com/kalambet/pageqa/internal/ingest"
	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/reader"
	"github.com/kalambet/pageqa/internal/reranking"
	"github.com/kalambet/pageqa/internal/retrieval"
	"github.com/kalambet/pageqa/internal/storage"
)

var (
	_ pipeline.Ingester      = (*ingest.Ingester)(nil)
	_ pipeline.Indexer       = (*retrieval.Indexer)(nil)
	_ pipeline.AnswerService = (*inference.Service)(nil)
	_ inference.Reader       = (*reader.Reader)(nil)
	_ api.Runner             = (*pipeline.Orchestrator)(nil)
)

// app is the wired QA pipeline shared by run and serve.
type app struct {
	cfg   config.Config
	store *storage.Store
	eng   *engine.OllamaEngine
	orch  *pipeline.Orchestrator

	// Set only in embedding retrieval mode.
	embedder *retrieval.Embedder
	vectors  *retrieval.SQLiteStore
}

func newApp(cfg config.Config, opts ...pipeline.Option) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	cr, err := crawler.New(crawler.Options{
		OutputDir:  cfg.Crawler.OutputDir,
		Depth:      cfg.Crawler.Depth,
		Overwrite:  cfg.Crawler.Overwrite,
		UserAgent:  cfg.Crawler.UserAgent,
		Timeout:    config.Duration(cfg.Crawler.Timeout, 10*time.Second),
		FilterURLs: cfg.FilterURLs(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		store: store,
		eng:   engine.NewOllamaEngine(cfg.Ollama.BaseURL),
	}

	indexer := retrieval.NewIndexer(store)
	var retriever retrieval.Retriever = retrieval.NewBM25Retriever(store)
	if cfg.Retrieval.Mode == config.RetrievalEmbedding {
		a.embedder = retrieval.NewEmbedder(a.eng, cfg.Ollama.EmbedModel)
		a.vectors = retrieval.NewSQLiteStore(store.DB())
		indexer.WithVectors(a.embedder, a.vectors)
		retriever = retrieval.NewEmbeddingRetriever(a.embedder, a.vectors, store)
	}

	reranker := reranking.New(a.eng, cfg.Reranking.Enabled, reranking.Options{
		Model:     cfg.Reader.Model,
		Timeout:   config.Duration(cfg.Reranking.Timeout, reranking.DefaultTimeout),
		Threshold: cfg.Reranking.Threshold,
	})
	svc := inference.New(
		retriever,
		reader.New(a.eng, cfg.Reader.Model, cfg.Reader.ContextWindow),
		inference.WithReranker(reranker),
		inference.WithTopK(cfg.Retrieval.TopK),
	)

	a.orch = pipeline.New(ingest.New(cr), indexer, svc, opts...)
	return a, nil
}

// requiredModels lists the models the configured pipeline calls. override is
// the per-request reader model; empty means the configured one.
func (a *app) requiredModels(override string) []string {
	reader := a.cfg.Reader.Model
	if override != "" {
		reader = override
	}
	models := []string{reader}
	if a.embedder != nil {
		models = append(models, a.embedder.Model())
	}
	return models
}

func (a *app) defaults() api.Defaults {
	return api.Defaults{
		ModelRef:   a.cfg.Reader.Model,
		MaxAnswers: a.cfg.Reader.MaxAnswers,
		Queries:    a.cfg.DefaultQueries(),
		Ingest:     a.cfg.IngestConfig(),
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

// openStore opens the configured document store for the inspection commands.
func openStore() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}
