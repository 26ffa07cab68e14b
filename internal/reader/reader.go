// Package reader extracts answer spans from retrieved passages with a local
// chat model. Only spans that occur in the passage are kept.
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/engine"
	"github.com/kalambet/pageqa/internal/retrieval"
)

// DefaultContextWindow is the number of characters of context kept around an answer.
const DefaultContextWindow = 150

// Chatter is the chat completion side of the model engine.
type Chatter interface {
	Chat(ctx context.Context, req engine.ChatRequest) (string, error)
}

// Reader asks the model for an answer span in each passage.
type Reader struct {
	chat          Chatter
	model         string
	contextWindow int
}

// New creates a Reader. model is used when a call does not name one.
func New(chat Chatter, model string, contextWindow int) *Reader {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	return &Reader{chat: chat, model: model, contextWindow: contextWindow}
}

type spanResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// Read returns candidate answers for query found in passages, best first.
// A chat transport failure is returned as an error. Malformed model output
// or a span that cannot be found in the passage yields no candidate for that
// passage.
func (r *Reader) Read(ctx context.Context, query, model string, passages []retrieval.Passage) ([]domain.CandidateAnswer, error) {
	if model == "" {
		model = r.model
	}

	var out []domain.CandidateAnswer
	seen := make(map[string]int)
	for _, p := range passages {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		raw, err := r.chat.Chat(ctx, engine.ChatRequest{
			Model:       model,
			Messages:    BuildPrompt(query, p.Content),
			Schema:      answerSchema(),
			Temperature: engine.Float(0),
		})
		if err != nil {
			return nil, fmt.Errorf("reading passage %s: %w", p.ID, err)
		}

		c, ok := r.candidate(p.Document, raw)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s:%d:%d", c.DocumentID, c.StartOffset, c.EndOffset)
		if i, dup := seen[key]; dup {
			if c.Score > out[i].Score {
				out[i] = c
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (r *Reader) candidate(doc domain.Document, raw string) (domain.CandidateAnswer, bool) {
	resp, err := parseResponse(raw)
	if err != nil {
		slog.Warn("reader: unparsable model response", "document", doc.ID, "error", err, "response", raw)
		return domain.CandidateAnswer{}, false
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return domain.CandidateAnswer{}, false
	}

	start, end, ok := locate(doc.Content, resp.Answer)
	if !ok {
		slog.Debug("reader: span not in passage", "document", doc.ID, "answer", resp.Answer)
		return domain.CandidateAnswer{}, false
	}
	charStart, charEnd := charOffsets(doc.Content, start, end)
	return domain.CandidateAnswer{
		Text:        doc.Content[start:end],
		DocumentID:  doc.ID,
		Context:     contextWindow(doc.Content, start, end, r.contextWindow),
		StartOffset: charStart,
		EndOffset:   charEnd,
		Score:       min(max(resp.Score, 0), 1),
	}, true
}

// parseResponse decodes the model's JSON object, tolerating code fences and
// leading prose.
func parseResponse(raw string) (spanResponse, error) {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return spanResponse{}, fmt.Errorf("no JSON object in response")
	}
	var resp spanResponse
	if err := json.Unmarshal([]byte(s[start:end+1]), &resp); err != nil {
		return spanResponse{}, fmt.Errorf("unmarshal answer: %w", err)
	}
	return resp, nil
}
