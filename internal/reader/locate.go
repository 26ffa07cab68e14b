package reader

import (
	"strings"
	"unicode/utf8"
)

// locate finds span in text and returns its byte offsets. An exact match is
// preferred; otherwise the first case-insensitive match is used. Surrounding
// quotes and trailing punctuation the model tends to add are tried last.
func locate(text, span string) (start, end int, ok bool) {
	for _, s := range spanVariants(span) {
		if i := strings.Index(text, s); i >= 0 {
			return i, i + len(s), true
		}
		if i, n := foldIndex(text, s); i >= 0 {
			return i, i + n, true
		}
	}
	return 0, 0, false
}

func spanVariants(span string) []string {
	span = strings.TrimSpace(span)
	if span == "" {
		return nil
	}
	out := []string{span}
	if t := strings.TrimSpace(strings.Trim(span, "\"'`.,;:")); t != "" && t != span {
		out = append(out, t)
	}
	return out
}

// foldIndex is a case-insensitive strings.Index. It returns the byte offset
// of the match in text and the match length in bytes.
func foldIndex(text, span string) (int, int) {
	n := utf8.RuneCountInString(span)
	for i := 0; i < len(text); {
		// Advance j by n runes from i.
		j, count := i, 0
		for j < len(text) && count < n {
			_, size := utf8.DecodeRuneInString(text[j:])
			j += size
			count++
		}
		if count < n {
			break
		}
		if strings.EqualFold(text[i:j], span) {
			return i, j - i
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1, 0
}

// charOffsets converts the byte range [start, end) of text into character
// (rune) offsets.
func charOffsets(text string, start, end int) (int, int) {
	cs := utf8.RuneCountInString(text[:start])
	return cs, cs + utf8.RuneCountInString(text[start:end])
}

// contextWindow returns up to width characters of text centred on the byte
// range [start, end). The answer span is always included in full.
func contextWindow(text string, start, end, width int) string {
	spanRunes := utf8.RuneCountInString(text[start:end])
	pad := 0
	if width > spanRunes {
		pad = (width - spanRunes) / 2
	}

	from := start
	for k := 0; k < pad && from > 0; k++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for k := 0; k < pad && to < len(text); k++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return text[from:to]
}
