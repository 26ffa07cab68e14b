package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PAGEQA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "PAGEQA_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PAGEQA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "PAGEQA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "reader.model", typ: kString, env: "PAGEQA_READER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Reader.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Reader.Model },
	},
	{
		key: "reader.context_window", typ: kInt, env: "PAGEQA_READER_CONTEXT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Reader.ContextWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Reader.ContextWindow },
	},
	{
		key: "reader.max_answers", typ: kInt, env: "PAGEQA_READER_MAX_ANSWERS",
		apply:   func(cfg *Config, v any) { cfg.Reader.MaxAnswers = v.(int) },
		extract: func(cfg Config) any { return cfg.Reader.MaxAnswers },
	},
	{
		key: "retrieval.mode", typ: kString, env: "PAGEQA_RETRIEVAL_MODE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.Mode },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "PAGEQA_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "reranking.enabled", typ: kBool, env: "PAGEQA_RERANKING_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Reranking.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Reranking.Enabled },
	},
	{
		key: "reranking.threshold", typ: kFloat, env: "PAGEQA_RERANKING_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Reranking.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Reranking.Threshold },
	},
	{
		key: "reranking.timeout", typ: kString, env: "PAGEQA_RERANKING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Reranking.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranking.Timeout },
	},
	{
		key: "crawler.output_dir", typ: kString, env: "PAGEQA_CRAWLER_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Crawler.OutputDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawler.OutputDir },
	},
	{
		key: "crawler.depth", typ: kInt, env: "PAGEQA_CRAWLER_DEPTH",
		apply:   func(cfg *Config, v any) { cfg.Crawler.Depth = v.(int) },
		extract: func(cfg Config) any { return cfg.Crawler.Depth },
	},
	{
		key: "crawler.overwrite", typ: kBool, env: "PAGEQA_CRAWLER_OVERWRITE",
		apply:   func(cfg *Config, v any) { cfg.Crawler.Overwrite = v.(bool) },
		extract: func(cfg Config) any { return cfg.Crawler.Overwrite },
	},
	{
		key: "crawler.timeout", typ: kString, env: "PAGEQA_CRAWLER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Crawler.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawler.Timeout },
	},
	{
		key: "crawler.user_agent", typ: kString, env: "PAGEQA_CRAWLER_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Crawler.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawler.UserAgent },
	},
	{
		key: "crawler.filter_urls", typ: kString, env: "PAGEQA_CRAWLER_FILTER_URLS",
		apply:   func(cfg *Config, v any) { cfg.Crawler.FilterURLs = v.(string) },
		extract: func(cfg Config) any { return cfg.Crawler.FilterURLs },
	},
	{
		key: "preprocess.clean_whitespace", typ: kBool, env: "PAGEQA_PREPROCESS_CLEAN_WHITESPACE",
		apply:   func(cfg *Config, v any) { cfg.Preprocess.CleanWhitespace = v.(bool) },
		extract: func(cfg Config) any { return cfg.Preprocess.CleanWhitespace },
	},
	{
		key: "preprocess.clean_empty_lines", typ: kBool, env: "PAGEQA_PREPROCESS_CLEAN_EMPTY_LINES",
		apply:   func(cfg *Config, v any) { cfg.Preprocess.CleanEmptyLines = v.(bool) },
		extract: func(cfg Config) any { return cfg.Preprocess.CleanEmptyLines },
	},
	{
		key: "preprocess.split_by", typ: kString, env: "PAGEQA_PREPROCESS_SPLIT_BY",
		apply:   func(cfg *Config, v any) { cfg.Preprocess.SplitBy = v.(string) },
		extract: func(cfg Config) any { return cfg.Preprocess.SplitBy },
	},
	{
		key: "preprocess.split_length", typ: kInt, env: "PAGEQA_PREPROCESS_SPLIT_LENGTH",
		apply:   func(cfg *Config, v any) { cfg.Preprocess.SplitLength = v.(int) },
		extract: func(cfg Config) any { return cfg.Preprocess.SplitLength },
	},
	{
		key: "preprocess.language", typ: kString, env: "PAGEQA_PREPROCESS_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Preprocess.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.Preprocess.Language },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PAGEQA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "queries.default", typ: kString, env: "PAGEQA_QUERIES_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Queries.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Queries.Default },
	},
	{
		key: "log.level", typ: kString, env: "PAGEQA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
