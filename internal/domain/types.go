package domain

// RecordTitle is the title carried by every QA record.
const RecordTitle = "Relevant information"

// Metadata keys attached to documents by the ingestion pipeline.
const (
	MetaURL         = "url"
	MetaTitle       = "title"
	MetaContentType = "content_type"
	MetaLanguage    = "language"
	MetaSplitID     = "split_id"
	MetaSourcePath  = "source_path"
)

// Document is a unit of cleaned text ready for indexing.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CandidateAnswer is one answer span proposed by the inference service.
// Offsets are character (rune) offsets into the document content; EndOffset
// is exclusive.
type CandidateAnswer struct {
	Text        string  `json:"text"`
	DocumentID  string  `json:"document_id"`
	Context     string  `json:"context"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float64 `json:"score"`
}

// Record is the QA output for a single query, built from its top candidate.
// NoAnswer marks the sentinel emitted when inference found nothing.
type Record struct {
	Title        string            `json:"title"`
	Query        string            `json:"query"`
	DocumentID   string            `json:"document_id"`
	AnswerText   string            `json:"answer_text"`
	Context      string            `json:"context"`
	StartOffset  int               `json:"start_offset"`
	EndOffset    int               `json:"end_offset"`
	Confidence   float64           `json:"confidence"`
	NoAnswer     bool              `json:"no_answer,omitempty"`
	Alternatives []CandidateAnswer `json:"alternatives,omitempty"`
}

// SplitUnit selects how the preprocessor cuts documents.
type SplitUnit string

const (
	SplitWord     SplitUnit = "word"
	SplitSentence SplitUnit = "sentence"
	SplitPassage  SplitUnit = "passage"
)

// Valid reports whether u is a known split unit.
func (u SplitUnit) Valid() bool {
	switch u {
	case SplitWord, SplitSentence, SplitPassage:
		return true
	}
	return false
}

// IngestConfig enumerates the cleaning options applied during ingestion.
type IngestConfig struct {
	CleanWhitespace         bool
	CleanEmptyLines         bool
	SplitBy                 SplitUnit
	SplitLength             int
	SplitOverlap            int
	RespectSentenceBoundary bool
	Language                string

	// FirstOnly converts only the first crawled file and discards the rest.
	FirstOnly bool
}

// DefaultIngestConfig cleans whitespace and blank lines and splits into
// 200-word chunks on sentence boundaries.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		CleanWhitespace:         true,
		CleanEmptyLines:         true,
		SplitBy:                 SplitWord,
		SplitLength:             200,
		RespectSentenceBoundary: true,
		Language:                "en",
	}
}

// CloneMetadata returns a copy of m that is safe to mutate.
func CloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
