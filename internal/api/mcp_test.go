package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, runner Runner) (MCPDeps, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	return MCPDeps{
		Runs:    NewRunService(runner, store, Defaults{MaxAnswers: 1}),
		Store:   store,
		Version: "test",
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubRunner{})
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_AnswerQuestions(t *testing.T) {
	runner := &stubRunner{}
	deps, store := newTestMCPDeps(t, runner)
	handler := mcpAnswerQuestions(deps)

	req := makeCallToolRequest("answer_questions", map[string]interface{}{
		"urls":        []interface{}{"https://example.com"},
		"queries":     []interface{}{"What is the answer?"},
		"max_answers": float64(2),
		"model":       "llama3.2",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var docs []pipeline.SQuADDocument
	if err := json.Unmarshal([]byte(toolText(t, result)), &docs); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(docs) != 1 || docs[0].Data[0].Paragraphs[0].QAs[0].Answers[0].Text != "42" {
		t.Errorf("docs = %+v", docs)
	}

	got := runner.got[0]
	if got.ModelRef != "llama3.2" || got.MaxAnswers != 2 || got.Locators[0] != "https://example.com" {
		t.Errorf("request = %+v", got)
	}

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 saved run, got %d", len(runs))
	}
}

func TestMCPTool_AnswerQuestions_MissingURLs(t *testing.T) {
	runner := &stubRunner{}
	deps, _ := newTestMCPDeps(t, runner)
	handler := mcpAnswerQuestions(deps)

	result, err := handler(context.Background(), makeCallToolRequest("answer_questions", map[string]interface{}{
		"queries": []interface{}{"q"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(runner.got) != 0 {
		t.Error("runner should not be called without urls")
	}
}

func TestMCPTool_AnswerQuestions_RunFailure(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubRunner{err: &domain.InferenceError{Query: "q", Err: errors.New("connection refused")}})
	handler := mcpAnswerQuestions(deps)

	result, err := handler(context.Background(), makeCallToolRequest("answer_questions", map[string]interface{}{
		"urls":    []interface{}{"https://example.com"},
		"queries": []interface{}{"q"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "connection refused") {
		t.Errorf("error text = %q", toolText(t, result))
	}
}

func TestMCPTool_SearchDocuments(t *testing.T) {
	deps, store := newTestMCPDeps(t, &stubRunner{})
	handler := mcpSearchDocuments(deps)

	err := store.UpsertDocuments(context.Background(), []domain.Document{
		{ID: "d1", Content: "The Eiffel Tower is in Paris."},
		{ID: "d2", Content: "Bananas are yellow."},
	})
	if err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}

	result, err := handler(context.Background(), makeCallToolRequest("search_documents", map[string]interface{}{
		"query": "Paris",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var hits []searchHit
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("decoding hits: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "d1" {
		t.Errorf("hits = %+v", hits)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("search_documents", map[string]interface{}{
		"query": "kiwi",
	}))
	if toolText(t, result) != "[]" {
		t.Errorf("no-match result = %q, want []", toolText(t, result))
	}

	result, _ = handler(context.Background(), makeCallToolRequest("search_documents", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing query")
	}
}

func TestMCPResource_RecentRuns(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubRunner{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := deps.Runs.Answer(ctx, AnswerRequest{URLs: []string{"u"}, Queries: []string{"q"}}); err != nil {
			t.Fatalf("Answer: %v", err)
		}
	}

	handler := mcpResourceRecentRuns(deps)
	contents, err := handler(ctx, makeReadResourceRequest(recentRunsURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var runs []runView
	if err := json.Unmarshal([]byte(tc.Text), &runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.State != "DONE" || len(r.Results) != 0 {
			t.Errorf("run view = %+v", r)
		}
	}
}
