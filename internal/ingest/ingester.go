// Package ingest turns source locators into cleaned, split documents ready
// for indexing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/pageqa/internal/convert"
	"github.com/kalambet/pageqa/internal/crawler"
	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/preprocess"
)

// Fetcher retrieves locators into local files.
type Fetcher interface {
	Crawl(ctx context.Context, locators []string) ([]crawler.Page, error)
	OutputDir() string
}

// ConvertFunc turns one crawled file into a document.
type ConvertFunc func(path, contentType string) (domain.Document, error)

// Ingester crawls, converts and preprocesses locators.
type Ingester struct {
	fetcher Fetcher
	convert ConvertFunc
	logger  *slog.Logger
}

// New returns an Ingester that converts files with convert.File.
func New(f Fetcher) *Ingester {
	return &Ingester{fetcher: f, convert: convert.File, logger: slog.Default()}
}

// WithConverter replaces the file converter.
func (in *Ingester) WithConverter(fn ConvertFunc) *Ingester {
	in.convert = fn
	return in
}

// ArtifactsDir reports where crawled files are written.
func (in *Ingester) ArtifactsDir() string {
	return in.fetcher.OutputDir()
}

// Ingest crawls locators and returns the cleaned, split documents. Any
// failure on a seed locator fails the whole call with an
// *domain.IngestionError and no documents.
func (in *Ingester) Ingest(ctx context.Context, locators []string, cfg domain.IngestConfig) ([]domain.Document, error) {
	if len(locators) == 0 {
		return nil, &domain.IngestionError{Err: domain.ErrNoLocators}
	}

	pages, err := in.fetcher.Crawl(ctx, locators)
	if err != nil {
		var ie *domain.IngestionError
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, &domain.IngestionError{Err: err}
	}
	if len(pages) == 0 {
		return nil, &domain.IngestionError{Err: errors.New("crawler returned no files")}
	}
	if cfg.FirstOnly {
		if len(pages) > 1 {
			in.logger.Info("converting only the first crawled file", "skipped", len(pages)-1)
		}
		pages = pages[:1]
	}

	var raw []domain.Document
	for _, p := range pages {
		doc, err := in.convert(p.Path, p.ContentType)
		if err != nil {
			if p.Seed {
				return nil, &domain.IngestionError{Locator: p.Locator, Err: err}
			}
			in.logger.Warn("skipping unconvertible page", "url", p.Locator, "error", err)
			continue
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]string{}
		}
		doc.Metadata[domain.MetaURL] = p.Locator
		raw = append(raw, doc)
	}

	docs := preprocess.ProcessAll(raw, cfg)
	if len(docs) == 0 {
		return nil, &domain.IngestionError{Locator: locators[0], Err: fmt.Errorf("no text left after cleaning")}
	}

	in.logger.Info("ingested", "locators", len(locators), "files", len(pages), "documents", len(docs))
	return docs, nil
}
