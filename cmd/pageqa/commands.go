package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/pageqa/internal/config"
	"github.com/kalambet/pageqa/internal/domain"
	"github.com/kalambet/pageqa/internal/pipeline"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Keyword (BM25) search over indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.SearchBM25(context.Background(), query, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}

		for i, r := range results {
			fmt.Fprintf(out, "\n%s [score: %.3f] %s\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score, r.ID)
			if u := r.Metadata[domain.MetaURL]; u != "" {
				fmt.Fprintf(out, "  URL: %s\n", u)
			}
			fmt.Fprintf(out, "  %s\n", truncate(r.Content, 500))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect or delete indexed documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		docs, err := store.ListDocuments(context.Background(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents found.")
			return nil
		}

		for _, d := range docs {
			fmt.Fprintf(out, "%s  %s  %s\n",
				colorize(colorCyan, shortID(d.ID)),
				d.UpdatedAt.Format("2006-01-02 15:04"),
				truncate(d.Source, 80),
			)
		}
		return nil
	},
}

var documentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		doc, err := store.GetDocument(context.Background(), args[0])
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("document %s not found", args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", colorize(colorBold, "ID:"), doc.ID)
		for _, k := range []string{domain.MetaURL, domain.MetaTitle, domain.MetaContentType, domain.MetaSplitID} {
			if v := doc.Metadata[k]; v != "" {
				fmt.Fprintf(out, "%s %s\n", colorize(colorBold, k+":"), v)
			}
		}
		fmt.Fprintf(out, "\n%s\n", doc.Content)
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		err = store.DeleteDocument(context.Background(), args[0])
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("document %s not found", args[0])
		}
		if err != nil {
			return err
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	documentsListCmd.Flags().Int("limit", 20, "maximum number of documents to list")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(context.Background(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs found.")
			return nil
		}

		for _, r := range runs {
			state := r.State
			if state == string(pipeline.StateFailed) {
				state = colorize(colorRed, state)
			}
			fmt.Fprintf(out, "%s  %s  %-6s  %d queries  %s\n",
				colorize(colorCyan, shortID(r.ID)),
				r.CreatedAt.Format("2006-01-02 15:04"),
				state,
				len(r.Queries),
				truncate(strings.Join(r.Locators, ", "), 60),
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its answers as SQuAD JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(context.Background(), args[0])
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}

		printStatus("Run", "%s", run.ID)
		printStatus("Created", "%s", run.CreatedAt.Format("2006-01-02 15:04:05"))
		printStatus("State", "%s", run.State)
		printStatus("URLs", "%s", strings.Join(run.Locators, ", "))
		if run.ModelRef != "" {
			printStatus("Model", "%s", run.ModelRef)
		}
		printStatus("Duration", "%s", run.Duration)
		if run.Error != "" {
			printStatus("Error", "%s", run.Error)
			return nil
		}

		return pipeline.WriteSQuAD(cmd.OutOrStdout(), run.Records, format)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsShowCmd.Flags().String("format", pipeline.FormatJSON, "output format: json or jsonl")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
