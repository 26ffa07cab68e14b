package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLocators is returned when ingestion is asked to process nothing.
	ErrNoLocators = errors.New("no source locators given")

	// ErrNoQueries is returned when a run has no queries to answer.
	ErrNoQueries = errors.New("no queries given")

	// ErrInvalidMaxAnswers is returned when fewer than one answer is requested.
	ErrInvalidMaxAnswers = errors.New("max answers must be at least 1")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// IngestionError reports a crawl or conversion failure. It is fatal for a run.
type IngestionError struct {
	Locator string
	Err     error
}

func (e *IngestionError) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("ingestion failed: %v", e.Err)
	}
	return fmt.Sprintf("ingestion failed for %s: %v", e.Locator, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// StoreUnavailableError reports that the document store could not be written or read.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("document store unavailable (%s): %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// InferenceError reports a retrieval or reading failure for a query.
type InferenceError struct {
	Query string
	Err   error
}

func (e *InferenceError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("inference failed: %v", e.Err)
	}
	return fmt.Sprintf("inference failed for %q: %v", e.Query, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
