package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/pageqa/internal/domain"
)

type Config struct {
	Server     ServerConfig
	Ollama     OllamaConfig
	Reader     ReaderConfig
	Retrieval  RetrievalConfig
	Reranking  RerankingConfig
	Crawler    CrawlerConfig
	Preprocess PreprocessConfig
	Storage    StorageConfig
	Queries    QueriesConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type ReaderConfig struct {
	Model         string
	ContextWindow int
	MaxAnswers    int
}

type RetrievalConfig struct {
	Mode string
	TopK int
}

type RerankingConfig struct {
	Enabled   bool
	Threshold float64
	Timeout   string
}

type CrawlerConfig struct {
	OutputDir string
	Depth     int
	Overwrite bool
	Timeout   string
	UserAgent string
	// FilterURLs is a space-separated list of regular expressions; when set,
	// followed links must match at least one.
	FilterURLs string
}

type PreprocessConfig struct {
	CleanWhitespace bool
	CleanEmptyLines bool
	SplitBy         string
	SplitLength     int
	Language        string
}

type StorageConfig struct {
	DataDir string
}

type QueriesConfig struct {
	// Default is a comma-separated list used when a run names no queries.
	Default string
}

type LogConfig struct {
	Level string
}

// Retrieval modes.
const (
	RetrievalBM25      = "bm25"
	RetrievalEmbedding = "embedding"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Reader: ReaderConfig{
			Model:         "phi3.5",
			ContextWindow: 150,
			MaxAnswers:    1,
		},
		Retrieval: RetrievalConfig{
			Mode: RetrievalBM25,
			TopK: 1,
		},
		Reranking: RerankingConfig{
			Enabled:   false,
			Threshold: 0.3,
			Timeout:   "5s",
		},
		Crawler: CrawlerConfig{
			OutputDir: "crawled_files",
			Depth:     0,
			Overwrite: true,
			Timeout:   "10s",
			UserAgent: "pageqa/1.0",
		},
		Preprocess: PreprocessConfig{
			CleanWhitespace: true,
			CleanEmptyLines: true,
			SplitBy:         string(domain.SplitWord),
			SplitLength:     200,
			Language:        "en",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file and applies PAGEQA_*
// environment variable overrides on top.
//
// The config file lives at $XDG_CONFIG_HOME/pageqa/config.json
// (~/.config/pageqa/config.json when XDG_CONFIG_HOME is unset).
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch c.Retrieval.Mode {
	case RetrievalBM25, RetrievalEmbedding:
	default:
		return fmt.Errorf("invalid config: retrieval.mode %q (want %q or %q)", c.Retrieval.Mode, RetrievalBM25, RetrievalEmbedding)
	}
	if !domain.SplitUnit(c.Preprocess.SplitBy).Valid() {
		return fmt.Errorf("invalid config: preprocess.split_by %q (want word, sentence or passage)", c.Preprocess.SplitBy)
	}
	if c.Reader.MaxAnswers < 1 {
		return fmt.Errorf("invalid config: reader.max_answers must be >= 1, got %d", c.Reader.MaxAnswers)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("invalid config: retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Crawler.Depth < 0 {
		return fmt.Errorf("invalid config: crawler.depth must be >= 0, got %d", c.Crawler.Depth)
	}
	for _, f := range c.FilterURLs() {
		if _, err := regexp.Compile(f); err != nil {
			return fmt.Errorf("invalid config: crawler.filter_urls: %w", err)
		}
	}
	return nil
}

// IngestConfig converts the preprocess section into the ingestion options
// consumed by the pipeline.
func (c Config) IngestConfig() domain.IngestConfig {
	ic := domain.DefaultIngestConfig()
	ic.CleanWhitespace = c.Preprocess.CleanWhitespace
	ic.CleanEmptyLines = c.Preprocess.CleanEmptyLines
	ic.SplitBy = domain.SplitUnit(c.Preprocess.SplitBy)
	ic.SplitLength = c.Preprocess.SplitLength
	ic.Language = c.Preprocess.Language
	return ic
}

// DefaultQueries splits Queries.Default on commas, dropping blanks.
func (c Config) DefaultQueries() []string {
	var out []string
	for _, q := range strings.Split(c.Queries.Default, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// FilterURLs splits Crawler.FilterURLs on whitespace. Patterns may contain
// commas, so they are not comma-separated like the default queries.
func (c Config) FilterURLs() []string {
	return strings.Fields(c.Crawler.FilterURLs)
}

// Duration parses a duration config value, returning fallback when the
// value is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
