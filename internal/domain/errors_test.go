package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ingestion", &IngestionError{Locator: "https://example.com", Err: cause}, "https://example.com"},
		{"ingestion without locator", &IngestionError{Err: ErrNoLocators}, "no source locators"},
		{"store", &StoreUnavailableError{Op: "index", Err: cause}, "index"},
		{"inference", &InferenceError{Query: "who?", Err: cause}, `"who?"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("run: %w", tt.err)
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.want)
			}
			if errors.Unwrap(tt.err) == nil {
				t.Error("Unwrap() = nil, want cause")
			}
			if errors.Unwrap(wrapped) != tt.err {
				t.Error("wrapped error does not unwrap to the typed error")
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", &StoreUnavailableError{Op: "index", Err: errors.New("disk full")})

	var storeErr *StoreUnavailableError
	if !errors.As(err, &storeErr) {
		t.Fatal("errors.As did not find StoreUnavailableError")
	}
	if storeErr.Op != "index" {
		t.Errorf("Op = %q, want %q", storeErr.Op, "index")
	}

	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		t.Error("errors.As unexpectedly matched IngestionError")
	}
}

func TestIngestionErrorIs(t *testing.T) {
	err := &IngestionError{Err: ErrNoLocators}
	if !errors.Is(err, ErrNoLocators) {
		t.Error("errors.Is(err, ErrNoLocators) = false, want true")
	}
}

func TestSplitUnitValid(t *testing.T) {
	for _, u := range []SplitUnit{SplitWord, SplitSentence, SplitPassage} {
		if !u.Valid() {
			t.Errorf("%q.Valid() = false, want true", u)
		}
	}
	if SplitUnit("paragraph").Valid() {
		t.Error(`"paragraph".Valid() = true, want false`)
	}
}

func TestCloneMetadata(t *testing.T) {
	orig := map[string]string{"url": "https://example.com"}
	cp := CloneMetadata(orig)
	cp["url"] = "changed"
	if orig["url"] != "https://example.com" {
		t.Error("CloneMetadata shares the underlying map")
	}
	if got := CloneMetadata(nil); got == nil {
		t.Error("CloneMetadata(nil) = nil, want empty map")
	}
}

func TestContentID(t *testing.T) {
	a := ContentID("The answer is 42.")
	b := ContentID("The answer is 42.")
	c := ContentID("The answer is 43.")
	if a != b {
		t.Errorf("same content produced different IDs: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different content produced the same ID")
	}
	if len(a) != 36 {
		t.Errorf("ID %q is not a UUID string", a)
	}
}
