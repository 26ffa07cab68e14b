package pipeline

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kalambet/pageqa/internal/domain"
)

// Output formats accepted by WriteSQuAD.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// SQuADDocument is one top-level QA object. Each processed query produces one.
type SQuADDocument struct {
	Data []SQuADArticle `json:"data"`
}

type SQuADArticle struct {
	Title      string           `json:"title"`
	Paragraphs []SQuADParagraph `json:"paragraphs"`
}

type SQuADParagraph struct {
	QAs []SQuADQA `json:"qas"`
}

type SQuADQA struct {
	DocumentID      string        `json:"document_id"`
	Query           string        `json:"query"`
	Answers         []SQuADAnswer `json:"answers"`
	ConfidenceScore float64       `json:"confidence_score"`
}

type SQuADAnswer struct {
	Text        string `json:"text"`
	Context     string `json:"context"`
	AnswerStart int    `json:"answer_start"`
	AnswerEnd   int    `json:"answer_end"`
}

// FormatSQuAD converts records into SQuAD-style objects, one per record.
// Alternatives follow the top answer in the answers list. A no-answer
// record has an empty answers list.
func FormatSQuAD(records []domain.Record) []SQuADDocument {
	out := make([]SQuADDocument, len(records))
	for i, r := range records {
		qa := SQuADQA{
			DocumentID:      r.DocumentID,
			Query:           r.Query,
			Answers:         []SQuADAnswer{},
			ConfidenceScore: r.Confidence,
		}
		if !r.NoAnswer {
			qa.Answers = append(qa.Answers, SQuADAnswer{
				Text:        r.AnswerText,
				Context:     r.Context,
				AnswerStart: r.StartOffset,
				AnswerEnd:   r.EndOffset,
			})
			for _, alt := range r.Alternatives {
				qa.Answers = append(qa.Answers, SQuADAnswer{
					Text:        alt.Text,
					Context:     alt.Context,
					AnswerStart: alt.StartOffset,
					AnswerEnd:   alt.EndOffset,
				})
			}
		}
		out[i] = SQuADDocument{Data: []SQuADArticle{{
			Title:      r.Title,
			Paragraphs: []SQuADParagraph{{QAs: []SQuADQA{qa}}},
		}}}
	}
	return out
}

// WriteSQuAD writes records to w. FormatJSON writes one indented array;
// FormatJSONL writes one compact object per line.
func WriteSQuAD(w io.Writer, records []domain.Record, format string) error {
	docs := FormatSQuAD(records)
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, d := range docs {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want json or jsonl)", format)
	}
}
