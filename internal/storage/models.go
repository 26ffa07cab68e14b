package storage

import (
	"time"

	"github.com/kalambet/pageqa/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = domain.ErrNotFound

// StoredDocument is a document row with its bookkeeping columns.
type StoredDocument struct {
	domain.Document
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoredDocument is a full-text search hit. Higher Score is better.
type ScoredDocument struct {
	domain.Document
	Score float64
}

// Run is a persisted orchestrator run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Locators  []string
	Queries   []string
	ModelRef  string
	State     string
	Error     string
	Records   []domain.Record
	Duration  time.Duration
}
