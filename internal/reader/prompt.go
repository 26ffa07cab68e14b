package reader

import (
	"fmt"

	"github.com/kalambet/pageqa/internal/engine"
)

const systemPrompt = `You are an extractive question answering engine. You are given a passage and a question. Copy the shortest span of the passage that answers the question, character for character, without rephrasing. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- "answer" must appear verbatim in the passage.
- If the passage does not answer the question, set "answer" to an empty string and "score" to 0.
- "score" is your confidence between 0 and 1 that the span answers the question.`

// BuildPrompt constructs the chat messages asking for an answer span from passage.
func BuildPrompt(query, passage string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Passage:\n%s\n\nQuestion: %s", passage, query)},
	}
}

func answerSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"answer": {Type: "string", Description: "Span copied verbatim from the passage, or empty"},
			"score":  {Type: "number", Description: "Confidence from 0 to 1"},
		},
		Required: []string{"answer", "score"},
	}
}
