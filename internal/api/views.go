package api

import (
	"time"

	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/storage"
)

type runView struct {
	ID         string                   `json:"id"`
	CreatedAt  string                   `json:"created_at"`
	Locators   []string                 `json:"urls"`
	Queries    []string                 `json:"queries"`
	ModelRef   string                   `json:"model,omitempty"`
	State      string                   `json:"state"`
	Error      string                   `json:"error,omitempty"`
	DurationMS int64                    `json:"duration_ms"`
	Results    []pipeline.SQuADDocument `json:"results,omitempty"`
}

func newRunView(r storage.Run, withResults bool) runView {
	v := runView{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		Locators:   r.Locators,
		Queries:    r.Queries,
		ModelRef:   r.ModelRef,
		State:      r.State,
		Error:      r.Error,
		DurationMS: r.Duration.Milliseconds(),
	}
	if withResults {
		v.Results = pipeline.FormatSQuAD(r.Records)
	}
	return v
}

type documentView struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    string            `json:"source,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

func newDocumentView(d storage.StoredDocument) documentView {
	return documentView{
		ID:        d.ID,
		Content:   d.Content,
		Metadata:  d.Metadata,
		Source:    d.Source,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type searchHit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newSearchHits(docs []storage.ScoredDocument) []searchHit {
	hits := make([]searchHit, len(docs))
	for i, d := range docs {
		hits[i] = searchHit{ID: d.ID, Score: d.Score, Content: d.Content, Metadata: d.Metadata}
	}
	return hits
}
