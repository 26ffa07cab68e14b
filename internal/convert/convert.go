// Package convert turns crawled files into plain-text documents.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/kalambet/pageqa/internal/domain"
)

// Supported content types.
const (
	TypeHTML  = "text/html"
	TypePDF   = "application/pdf"
	TypePlain = "text/plain"
)

// ErrEmpty is returned when a file yields no text.
var ErrEmpty = errors.New("no text content")

// File converts the file at path into a Document without an ID. The
// document carries content_type, source_path and, for HTML, title metadata.
func File(path, contentType string) (domain.Document, error) {
	var (
		text  string
		title string
		err   error
	)
	switch contentType {
	case TypeHTML:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return domain.Document{}, err
		}
		text, title = HTML(f)
		f.Close()
	case TypePDF:
		text, err = PDF(path)
	case TypePlain, "":
		var data []byte
		data, err = os.ReadFile(path)
		text = strings.ToValidUTF8(string(data), "")
	default:
		return domain.Document{}, fmt.Errorf("converting %s: unsupported content type %q", path, contentType)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("converting %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Document{}, fmt.Errorf("converting %s: %w", path, ErrEmpty)
	}

	meta := map[string]string{
		domain.MetaContentType: contentType,
		domain.MetaSourcePath:  path,
	}
	if contentType == "" {
		meta[domain.MetaContentType] = TypePlain
	}
	if title == "" {
		title = titleFromPath(path)
	}
	meta[domain.MetaTitle] = title

	return domain.Document{Content: text, Metadata: meta}, nil
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true,
	"head": true, "template": true, "iframe": true,
}

type breakKind int

const (
	noBreak breakKind = iota
	lineBreak
	paragraphBreak
)

// blockTags maps block elements to the break they imply. Paragraph breaks
// become blank lines so passage splitting sees the document's paragraphs.
var blockTags = map[string]breakKind{
	"br": lineBreak, "li": lineBreak, "tr": lineBreak, "td": lineBreak,
	"th": lineBreak, "dd": lineBreak, "dt": lineBreak,

	"p": paragraphBreak, "div": paragraphBreak, "hr": paragraphBreak,
	"h1": paragraphBreak, "h2": paragraphBreak, "h3": paragraphBreak,
	"h4": paragraphBreak, "h5": paragraphBreak, "h6": paragraphBreak,
	"blockquote": paragraphBreak, "pre": paragraphBreak, "table": paragraphBreak,
	"section": paragraphBreak, "article": paragraphBreak, "main": paragraphBreak,
	"aside": paragraphBreak, "header": paragraphBreak, "footer": paragraphBreak,
	"ul": paragraphBreak, "ol": paragraphBreak, "dl": paragraphBreak,
	"figure": paragraphBreak, "figcaption": paragraphBreak,
}

var (
	multiSpaces = regexp.MustCompile(`[ \t\f\v\r]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// HTML extracts readable text and the <title> from an HTML document. Line
// level elements (li, br, td) end a line and paragraph level elements (p,
// headings, sections) leave a blank line. Whitespace inside text follows HTML
// rules except within <pre>.
func HTML(r io.Reader) (text, title string) {
	z := html.NewTokenizer(r)
	var (
		buf     strings.Builder
		tbuf    strings.Builder
		skip    int
		pre     int
		inTitle bool
		pending breakKind
	)
	markBreak := func(tag string) {
		if k := blockTags[tag]; k > pending {
			pending = k
		}
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return collapse(buf.String()), strings.TrimSpace(multiSpaces.ReplaceAllString(tbuf.String(), " "))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" && tt == html.StartTagToken {
				inTitle = true
				continue
			}
			if skipTags[tag] && tt == html.StartTagToken {
				skip++
				continue
			}
			if skip > 0 {
				continue
			}
			if tag == "pre" && tt == html.StartTagToken {
				pre++
			}
			markBreak(tag)
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = false
				continue
			}
			if skipTags[tag] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 {
				continue
			}
			if tag == "pre" && pre > 0 {
				pre--
			}
			markBreak(tag)
		case html.TextToken:
			if inTitle {
				tbuf.Write(z.Text())
				continue
			}
			if skip > 0 {
				continue
			}
			t := string(z.Text())
			if pre == 0 {
				t = whitespace.ReplaceAllString(t, " ")
			}
			if strings.TrimSpace(t) == "" {
				if pending == noBreak && buf.Len() > 0 {
					buf.WriteString(t)
				}
				continue
			}
			if buf.Len() > 0 {
				switch pending {
				case lineBreak:
					buf.WriteString("\n")
				case paragraphBreak:
					buf.WriteString("\n\n")
				}
			}
			pending = noBreak
			buf.WriteString(t)
		}
	}
}

// collapse trims every line and squeezes runs of spaces. Runs of empty lines
// shrink to a single empty line; leading and trailing ones are dropped.
func collapse(s string) string {
	var (
		out   []string
		blank bool
	)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// PDF extracts the plain text of every page.
func PDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rd); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}
