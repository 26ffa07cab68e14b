package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/pageqa/internal/api"
	"github.com/kalambet/pageqa/internal/config"
	"github.com/kalambet/pageqa/internal/engine"
	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/queryset"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl pages and answer questions about them",
	Long: `Crawl the given pages, index their text and answer each question.

Results are printed as SQuAD-style JSON, one object per question, in the
order the questions were given. Without --query or --queries-file the
configured default query list (queries.default) is used.

Examples:
  pageqa run --url https://example.com --query "Who wrote this?"
  pageqa run --url ./report.pdf --queries-file questions.txt --max-answers 3
  pageqa run --url https://example.com --format jsonl --output answers.jsonl --save`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != pipeline.FormatJSON && format != pipeline.FormatJSONL {
			return fmt.Errorf("unknown output format %q (want json or jsonl)", format)
		}

		req, err := answerRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg, pipeline.WithCompletionHook(func(r pipeline.CompletionReport) {
			printStep("Crawled content at %s", r.ArtifactsDir)
		}))
		if err != nil {
			return err
		}
		defer a.Close()

		if err := engine.EnsureReady(ctx, a.eng, os.Stderr, a.requiredModels(req.Model)...); err != nil {
			return err
		}

		var runs api.RunStore
		save, _ := cmd.Flags().GetBool("save")
		if save {
			runs = a.store
		}

		res, err := api.NewRunService(a.orch, runs, a.defaults()).Answer(ctx, req)
		if err != nil {
			return err
		}
		if save {
			printSuccess("Saved run %s", res.RunID)
		}

		output, _ := cmd.Flags().GetString("output")
		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := pipeline.WriteSQuAD(w, res.Records, format); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Answers written to %s", output)
		}
		return nil
	},
}

func init() {
	registerRunFlags(runCmd)
}

func registerRunFlags(c *cobra.Command) {
	c.Flags().StringSlice("url", nil, "page URL or local file to read (repeatable)")
	c.Flags().StringArray("query", nil, "question to answer (repeatable)")
	c.Flags().String("queries-file", "", "YAML or text file with questions")
	c.Flags().String("model", "", "reader model (default: reader.model)")
	c.Flags().Int("max-answers", 0, "answers per question (default: reader.max_answers)")
	c.Flags().Bool("first-only", false, "convert only the first crawled file")
	c.Flags().String("format", pipeline.FormatJSON, "output format: json or jsonl")
	c.Flags().String("output", "", "output file path (default: stdout)")
	c.Flags().Bool("save", false, "record the run in run history")
}

// answerRequestFromFlags merges the run flags with an optional query set file.
// Flags win over values in the file; queries from both are kept, flags first.
func answerRequestFromFlags(cmd *cobra.Command) (api.AnswerRequest, error) {
	urls, _ := cmd.Flags().GetStringSlice("url")
	queries, _ := cmd.Flags().GetStringArray("query")
	file, _ := cmd.Flags().GetString("queries-file")
	model, _ := cmd.Flags().GetString("model")
	maxAnswers, _ := cmd.Flags().GetInt("max-answers")
	firstOnly, _ := cmd.Flags().GetBool("first-only")

	if maxAnswers < 0 {
		return api.AnswerRequest{}, fmt.Errorf("--max-answers must not be negative")
	}

	req := api.AnswerRequest{
		URLs:       urls,
		Queries:    queries,
		Model:      model,
		MaxAnswers: maxAnswers,
		FirstOnly:  firstOnly,
	}

	if file != "" {
		set, err := queryset.Load(file)
		if err != nil {
			return api.AnswerRequest{}, err
		}
		req.Queries = append(req.Queries, set.Queries...)
		if len(req.URLs) == 0 {
			req.URLs = set.URLs
		}
		if req.Model == "" {
			req.Model = set.Model
		}
		if req.MaxAnswers == 0 {
			req.MaxAnswers = set.MaxAnswers
		}
	}

	if len(req.URLs) == 0 {
		return api.AnswerRequest{}, fmt.Errorf("at least one --url is required")
	}
	return req, nil
}
