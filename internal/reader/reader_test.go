package reader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/engine"
	"github.com/kalambet/pageqa/internal/retrieval"
)

// mockChatter replies with responses[passage content], or err.
type mockChatter struct {
	responses map[string]string
	err       error
	requests  []engine.ChatRequest
}

func (m *mockChatter) Chat(_ context.Context, req engine.ChatRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	user := req.Messages[len(req.Messages)-1].Content
	for passage, resp := range m.responses {
		if strings.Contains(user, passage) {
			return resp, nil
		}
	}
	return `{"answer":"","score":0}`, nil
}

func passage(id, content string) retrieval.Passage {
	return retrieval.Passage{Document: domain.Document{ID: id, Content: content}}
}

func TestReadExactSpan(t *testing.T) {
	chat := &mockChatter{responses: map[string]string{
		"The answer is 42.": `{"answer":"42","score":0.9}`,
	}}
	r := New(chat, "phi3.5", 150)

	got, err := r.Read(context.Background(), "What is the answer?", "", []retrieval.Passage{passage("doc1", "The answer is 42.")})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	want := domain.CandidateAnswer{Text: "42", DocumentID: "doc1", Context: "The answer is 42.", StartOffset: 14, EndOffset: 16, Score: 0.9}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
	if chat.requests[0].Model != "phi3.5" {
		t.Errorf("model = %q, want default phi3.5", chat.requests[0].Model)
	}
	if chat.requests[0].Temperature == nil || *chat.requests[0].Temperature != 0 {
		t.Error("reader should request temperature 0")
	}
}

func TestReadCharacterOffsets(t *testing.T) {
	const text = "Zürich hat 42 Seen."
	chat := &mockChatter{responses: map[string]string{text: `{"answer":"42","score":0.7}`}}

	got, err := New(chat, "m", 150).Read(context.Background(), "Wie viele Seen?", "", []retrieval.Passage{passage("d", text)})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].StartOffset != 11 || got[0].EndOffset != 13 {
		t.Errorf("offsets = [%d,%d), want [11,13)", got[0].StartOffset, got[0].EndOffset)
	}
	runes := []rune(text)
	if s := string(runes[got[0].StartOffset:got[0].EndOffset]); s != got[0].Text {
		t.Errorf("runes[start:end] = %q, want %q", s, got[0].Text)
	}
}

func TestReadModelOverride(t *testing.T) {
	chat := &mockChatter{}
	r := New(chat, "phi3.5", 0)
	if _, err := r.Read(context.Background(), "q", "llama3.2", []retrieval.Passage{passage("d", "text")}); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if chat.requests[0].Model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", chat.requests[0].Model)
	}
}

func TestReadCaseInsensitiveSpan(t *testing.T) {
	chat := &mockChatter{responses: map[string]string{
		"Paris is the capital": `{"answer":"paris","score":0.8}`,
	}}
	r := New(chat, "m", 150)
	got, err := r.Read(context.Background(), "capital?", "", []retrieval.Passage{passage("d", "Paris is the capital of France.")})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Paris" || got[0].StartOffset != 0 || got[0].EndOffset != 5 {
		t.Errorf("got %+v, want Paris at [0,5)", got)
	}
}

func TestReadDiscardsInventedSpan(t *testing.T) {
	chat := &mockChatter{responses: map[string]string{
		"The sky": `{"answer":"blue-green","score":0.99}`,
	}}
	r := New(chat, "m", 150)
	got, err := r.Read(context.Background(), "colour?", "", []retrieval.Passage{passage("d", "The sky is blue.")})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want no candidates", got)
	}
}

func TestReadMalformedResponse(t *testing.T) {
	chat := &mockChatter{responses: map[string]string{"text": `not json`}}
	got, err := New(chat, "m", 150).Read(context.Background(), "q", "", []retrieval.Passage{passage("d", "text")})
	if err != nil {
		t.Fatalf("malformed output should not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
}

func TestReadTransportError(t *testing.T) {
	chat := &mockChatter{err: errors.New("connection refused")}
	_, err := New(chat, "m", 150).Read(context.Background(), "q", "", []retrieval.Passage{passage("d", "text")})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want connection refused", err)
	}
}

func TestReadSortsAndClamps(t *testing.T) {
	chat := &mockChatter{responses: map[string]string{
		"alpha beta": "```json\n{\"answer\":\"beta\",\"score\":0.4}\n```",
		"gamma delta": `{"answer":"gamma","score":1.8}`,
	}}
	r := New(chat, "m", 150)
	got, err := r.Read(context.Background(), "q", "", []retrieval.Passage{
		passage("a", "alpha beta"),
		passage("b", "gamma delta"),
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].DocumentID != "b" || got[0].Score != 1 {
		t.Errorf("first = %+v, want b with clamped score 1", got[0])
	}
	if got[1].DocumentID != "a" || got[1].Score != 0.4 {
		t.Errorf("second = %+v, want a with 0.4", got[1])
	}
}

func TestReadNoPassages(t *testing.T) {
	got, err := New(&mockChatter{}, "m", 150).Read(context.Background(), "q", "", nil)
	if err != nil || len(got) != 0 {
		t.Errorf("Read(nil) = %v, %v; want empty, nil", got, err)
	}
}

func TestLocate(t *testing.T) {
	tests := []struct {
		text, span string
		start, end int
		ok         bool
	}{
		{"The answer is 42.", "42", 14, 16, true},
		{"The answer is 42.", "THE ANSWER", 0, 10, true},
		{"The answer is 42.", `"42."`, 14, 16, true},
		{"Zürich liegt am See", "zürich", 0, 7, true},
		{"The answer is 42.", "43", 0, 0, false},
		{"anything", "   ", 0, 0, false},
	}
	for _, tt := range tests {
		start, end, ok := locate(tt.text, tt.span)
		if ok != tt.ok || start != tt.start || end != tt.end {
			t.Errorf("locate(%q, %q) = %d, %d, %v; want %d, %d, %v", tt.text, tt.span, start, end, ok, tt.start, tt.end, tt.ok)
		}
	}
}

func TestCharOffsets(t *testing.T) {
	text := "Zürich hat 42 Seen."
	start, end, ok := locate(text, "42")
	if !ok {
		t.Fatal("locate failed")
	}
	if start != 12 || end != 14 {
		t.Fatalf("byte offsets = %d, %d; want 12, 14", start, end)
	}
	if cs, ce := charOffsets(text, start, end); cs != 11 || ce != 13 {
		t.Errorf("charOffsets = %d, %d; want 11, 13", cs, ce)
	}
	if cs, ce := charOffsets("The answer is 42.", 14, 16); cs != 14 || ce != 16 {
		t.Errorf("ASCII charOffsets = %d, %d; want 14, 16", cs, ce)
	}
}

func TestContextWindow(t *testing.T) {
	text := strings.Repeat("a", 100) + "ANSWER" + strings.Repeat("b", 100)
	got := contextWindow(text, 100, 106, 26)
	if got != strings.Repeat("a", 10)+"ANSWER"+strings.Repeat("b", 10) {
		t.Errorf("contextWindow = %q", got)
	}

	// Window narrower than the span still returns the whole span.
	if got := contextWindow(text, 100, 106, 2); got != "ANSWER" {
		t.Errorf("narrow window = %q, want ANSWER", got)
	}

	// Window clipped at text boundaries.
	if got := contextWindow("xx42yy", 2, 4, 150); got != "xx42yy" {
		t.Errorf("clipped window = %q", got)
	}
}
