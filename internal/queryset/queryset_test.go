package queryset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseYAMLList(t *testing.T) {
	s, err := ParseYAML([]byte("- What is the answer?\n- \"  Who wrote it?  \"\n- ''\n"))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	want := []string{"What is the answer?", "Who wrote it?"}
	if !reflect.DeepEqual(s.Queries, want) {
		t.Errorf("Queries = %q, want %q", s.Queries, want)
	}
}

func TestParseYAMLMapping(t *testing.T) {
	data := []byte(`
urls:
  - https://example.com/a
queries:
  - What is the answer?
model: llama3.2
max_answers: 2
`)
	s, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	want := Set{
		URLs:       []string{"https://example.com/a"},
		Queries:    []string{"What is the answer?"},
		Model:      "llama3.2",
		MaxAnswers: 2,
	}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("Set = %+v, want %+v", s, want)
	}
}

func TestParseYAMLErrors(t *testing.T) {
	for _, in := range []string{"", "just a scalar", "queries: [a]\nmax_answers: -1\n", "queries: {a: b}\n"} {
		if _, err := ParseYAML([]byte(in)); err == nil {
			t.Errorf("ParseYAML(%q) should fail", in)
		}
	}
}

func TestParseText(t *testing.T) {
	s, err := ParseText([]byte("# header\nfirst question\n\n  second question  \n"))
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	want := []string{"first question", "second question"}
	if !reflect.DeepEqual(s.Queries, want) {
		t.Errorf("Queries = %q, want %q", s.Queries, want)
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "q.yml")
	txt := filepath.Join(dir, "q.txt")
	os.WriteFile(yml, []byte("- from yaml\n"), 0o644)
	os.WriteFile(txt, []byte("- from text\n"), 0o644)

	s, err := Load(yml)
	if err != nil {
		t.Fatalf("Load(yml): %v", err)
	}
	if len(s.Queries) != 1 || s.Queries[0] != "from yaml" {
		t.Errorf("yaml queries = %q", s.Queries)
	}

	s, err = Load(txt)
	if err != nil {
		t.Fatalf("Load(txt): %v", err)
	}
	if len(s.Queries) != 1 || s.Queries[0] != "- from text" {
		t.Errorf("text queries = %q", s.Queries)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
