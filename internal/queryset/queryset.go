// Package queryset loads the queries for a run from a file.
//
// A YAML file is either a list of queries or a mapping:
//
//	urls: [https://example.com]
//	queries:
//	  - What is the answer?
//	model: phi3.5
//	max_answers: 2
//
// Any other file is read as plain text, one query per line. Blank lines and
// lines starting with # are ignored.
package queryset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set is a list of queries plus optional run settings.
type Set struct {
	URLs       []string `yaml:"urls,omitempty"`
	Queries    []string `yaml:"queries"`
	Model      string   `yaml:"model,omitempty"`
	MaxAnswers int      `yaml:"max_answers,omitempty"`
}

// Load reads a query set from path. The format is chosen by extension.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("reading query set: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseText(data)
	}
}

// ParseYAML parses a YAML list of queries or a Set mapping.
func ParseYAML(data []byte) (Set, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Set{}, fmt.Errorf("parsing query set: %w", err)
	}
	if len(doc.Content) == 0 {
		return Set{}, errors.New("query set is empty")
	}

	var s Set
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&s.Queries); err != nil {
			return Set{}, fmt.Errorf("decoding query list: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&s); err != nil {
			return Set{}, fmt.Errorf("decoding query set: %w", err)
		}
	default:
		return Set{}, fmt.Errorf("query set must be a list or a mapping, line %d", root.Line)
	}

	s.Queries = clean(s.Queries)
	s.URLs = clean(s.URLs)
	if s.MaxAnswers < 0 {
		return Set{}, fmt.Errorf("max_answers must not be negative, got %d", s.MaxAnswers)
	}
	return s, nil
}

// ParseText reads one query per line.
func ParseText(data []byte) (Set, error) {
	var s Set
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.Queries = append(s.Queries, line)
	}
	if err := sc.Err(); err != nil {
		return Set{}, fmt.Errorf("reading query list: %w", err)
	}
	return s, nil
}

func clean(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
