// Package preprocess cleans converted text and splits it into indexable
// documents.
package preprocess

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/pageqa/internal/domain"
)

var emptyLines = regexp.MustCompile(`\n\n+`)

// Clean applies the whitespace and empty-line rules of cfg.
func Clean(text string, cfg domain.IngestConfig) string {
	if cfg.CleanWhitespace {
		lines := strings.Split(text, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimSpace(l)
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if cfg.CleanEmptyLines {
		text = emptyLines.ReplaceAllString(text, "\n\n")
	}
	return text
}

// Split cuts text into pieces according to cfg.SplitBy. An empty SplitBy or
// a non-positive SplitLength returns the text as one piece. Blank pieces are
// dropped.
func Split(text string, cfg domain.IngestConfig) []string {
	if cfg.SplitBy == "" || cfg.SplitLength < 1 {
		return nonBlank([]string{text})
	}
	overlap := cfg.SplitOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= cfg.SplitLength {
		overlap = cfg.SplitLength - 1
	}

	switch cfg.SplitBy {
	case domain.SplitWord:
		if cfg.RespectSentenceBoundary {
			return splitWordsBySentence(text, cfg.SplitLength, overlap)
		}
		return windows(strings.Fields(text), cfg.SplitLength, overlap, " ")
	case domain.SplitSentence:
		return windows(Sentences(text), cfg.SplitLength, overlap, "")
	case domain.SplitPassage:
		return windows(strings.Split(text, "\n\n"), cfg.SplitLength, overlap, "\n\n")
	}
	return nonBlank([]string{text})
}

// windows groups units into runs of size, each starting size-overlap units
// after the previous one.
func windows(units []string, size, overlap int, sep string) []string {
	var out []string
	step := size - overlap
	for start := 0; start < len(units); start += step {
		end := min(start+size, len(units))
		out = append(out, strings.Join(units[start:end], sep))
		if end == len(units) {
			break
		}
	}
	return nonBlank(out)
}

// splitWordsBySentence packs whole sentences into chunks of at most size
// words. A sentence longer than size is cut on word boundaries. Overlap is
// honoured in whole sentences.
func splitWordsBySentence(text string, size, overlap int) []string {
	var (
		out     []string
		current []string
		words   int
		added   int
	)
	emit := func() {
		out = append(out, strings.Join(current, ""))
		var keep []string
		kw := 0
		for i := len(current) - 1; i >= 0 && overlap > 0; i-- {
			n := wordCount(current[i])
			if kw+n > overlap {
				break
			}
			keep = append([]string{current[i]}, keep...)
			kw += n
		}
		current, words, added = keep, kw, 0
	}

	for _, s := range Sentences(text) {
		n := wordCount(s)
		if n > size {
			if added > 0 {
				emit()
			}
			current, words, added = nil, 0, 0
			slog.Debug("cutting sentence longer than split length", "words", n, "split_length", size)
			out = append(out, windows(strings.Fields(s), size, overlap, " ")...)
			continue
		}
		if words+n > size {
			if added > 0 {
				emit()
			}
			// Drop carried overlap that no longer leaves room.
			for words+n > size && len(current) > 0 {
				words -= wordCount(current[0])
				current = current[1:]
			}
		}
		current = append(current, s)
		words += n
		added++
	}
	if added > 0 {
		out = append(out, strings.Join(current, ""))
	}
	return nonBlank(out)
}

// Sentences splits text after '.', '!' or '?' followed by whitespace. Each
// sentence keeps its trailing whitespace, so joining them restores text.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Absorb repeated terminators and closing quotes or brackets.
		for i < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[i:])
			if r2 == '.' || r2 == '!' || r2 == '?' || r2 == '"' || r2 == '\'' || r2 == ')' || r2 == '”' || r2 == '’' {
				i += s2
				continue
			}
			break
		}
		if i < len(text) {
			r2, _ := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r2) {
				continue
			}
		}
		for i < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r2) {
				break
			}
			i += s2
		}
		out = append(out, text[start:i])
		start = i
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func nonBlank(pieces []string) []string {
	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Process cleans doc and splits it. Every piece gets a content-derived ID, the
// source metadata, a split_id and the configured language.
func Process(doc domain.Document, cfg domain.IngestConfig) []domain.Document {
	text := Clean(doc.Content, cfg)
	pieces := Split(text, cfg)

	out := make([]domain.Document, 0, len(pieces))
	for i, p := range pieces {
		meta := domain.CloneMetadata(doc.Metadata)
		meta[domain.MetaSplitID] = strconv.Itoa(i)
		if cfg.Language != "" {
			meta[domain.MetaLanguage] = cfg.Language
		}
		out = append(out, domain.Document{
			ID:       domain.ContentID(p),
			Content:  p,
			Metadata: meta,
		})
	}
	return out
}

// ProcessAll runs Process over docs, keeping input order.
func ProcessAll(docs []domain.Document, cfg domain.IngestConfig) []domain.Document {
	var out []domain.Document
	for _, d := range docs {
		out = append(out, Process(d, cfg)...)
	}
	return out
}
