// Package reranking reorders retrieved passages by asking a chat model whether
// each passage contains the answer to the question.
package reranking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/pageqa/internal/engine"
	"github.com/kalambet/pageqa/internal/retrieval"
)

// DefaultTimeout bounds a whole Rerank call when none is configured.
const DefaultTimeout = 2 * time.Second

const defaultWorkers = 3

// Reranker reorders passages for a question. model selects the chat model;
// empty uses the reranker's default.
type Reranker interface {
	Rerank(ctx context.Context, question, model string, passages []retrieval.Passage) ([]retrieval.Passage, error)
}

var (
	_ Reranker = (*AnswerJudge)(nil)
	_ Reranker = (*NoOpReranker)(nil)
)

// Options tunes an AnswerJudge.
type Options struct {
	Model     string
	Timeout   time.Duration
	Threshold float64 // passages judged below this are dropped
	Workers   int     // concurrent judgments; 0 means 3
}

// New returns an AnswerJudge when enabled, and a pass-through otherwise.
func New(eng engine.Engine, enabled bool, opts Options) Reranker {
	if !enabled || eng == nil {
		return &NoOpReranker{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &AnswerJudge{engine: eng, opts: opts}
}

// AnswerJudge scores each (question, passage) pair with a chat model. Judged
// passages are ordered by score; passages the model could not judge keep
// their retrieval score and follow in retrieval order. When the timeout fires
// the input is returned unchanged.
type AnswerJudge struct {
	engine engine.Engine
	opts   Options
}

type verdict struct {
	score  float64
	judged bool
}

func (j *AnswerJudge) Rerank(ctx context.Context, question, model string, passages []retrieval.Passage) ([]retrieval.Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}
	if model == "" {
		model = j.opts.Model
	}

	ctx, cancel := context.WithTimeout(ctx, j.opts.Timeout)
	defer cancel()

	verdicts := make([]verdict, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Workers)
	for i, p := range passages {
		g.Go(func() error {
			score, err := j.judge(gctx, question, model, p.Content)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Debug("passage not judged", "id", p.ID, "error", err)
				return nil
			}
			verdicts[i] = verdict{score: score, judged: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Debug("reranking cut short, keeping retrieval order", "error", err)
		return passages, nil
	}

	var judged, rest []retrieval.Passage
	for i, p := range passages {
		v := verdicts[i]
		switch {
		case !v.judged:
			rest = append(rest, p)
		case v.score >= j.opts.Threshold:
			p.Score = v.score
			judged = append(judged, p)
		}
	}
	sort.SliceStable(judged, func(a, b int) bool { return judged[a].Score > judged[b].Score })
	return append(judged, rest...), nil
}

var verdictSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"score": {Type: "number", Description: "1.0 if the passage states the answer, 0.0 if it does not"},
	},
	Required: []string{"score"},
}

func (j *AnswerJudge) judge(ctx context.Context, question, model, passage string) (float64, error) {
	var b strings.Builder
	b.WriteString("You check passages for an extractive question answering system.\n")
	b.WriteString("Question: " + question + "\n")
	b.WriteString("Passage: " + passage + "\n")
	b.WriteString("Does the passage contain a span of text that answers the question? ")
	b.WriteString(`Reply with only {"score": <number between 0.0 and 1.0>}.`)

	resp, err := j.engine.Chat(ctx, engine.ChatRequest{
		Model:       model,
		Messages:    []engine.Message{{Role: "user", Content: b.String()}},
		Schema:      verdictSchema,
		Temperature: engine.Float(0),
	})
	if err != nil {
		return 0, err
	}
	return parseVerdict(resp)
}

var errNoVerdict = errors.New("no JSON object in reply")

// parseVerdict reads the score from a model reply. Small models wrap the object
// in code fences or prose, so only the outermost braces are decoded. The score
// is clamped to [0, 1].
func parseVerdict(resp string) (float64, error) {
	open := strings.IndexByte(resp, '{')
	end := strings.LastIndexByte(resp, '}')
	if open < 0 || end < open {
		return 0, errNoVerdict
	}
	var v struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(resp[open:end+1]), &v); err != nil {
		return 0, err
	}
	if v.Score == nil {
		return 0, errNoVerdict
	}
	return min(max(*v.Score, 0), 1), nil
}

// NoOpReranker returns passages unchanged.
type NoOpReranker struct{}

func (*NoOpReranker) Rerank(_ context.Context, _, _ string, passages []retrieval.Passage) ([]retrieval.Passage, error) {
	return passages, nil
}
