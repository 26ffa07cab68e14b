package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/pageqa/internal/pipeline"
)

const recentRunsURI = "pageqa://runs/recent"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runs    *RunService
	Store   Store
	Version string
}

// NewMCPServer creates an MCP server with the pageqa tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"pageqa",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pageqa crawls web pages and answers questions about them with extractive answers."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("answer_questions",
			mcp.WithDescription("Crawl the given pages, index their text and answer each question with a span copied from the pages. Returns SQuAD-style JSON, one object per question."),
			mcp.WithArray("urls", mcp.Description("Pages or local files to read"), mcp.Required()),
			mcp.WithArray("queries", mcp.Description("Questions to answer, in order. Defaults to the configured query list.")),
			mcp.WithNumber("max_answers", mcp.Description("Answers per question (default 1)")),
			mcp.WithString("model", mcp.Description("Reader model override")),
		),
		mcpAnswerQuestions(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Keyword (BM25) search over previously indexed documents."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocuments(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			recentRunsURI,
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 QA runs without their results"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentRuns(deps),
	)

	return s
}

func mcpAnswerQuestions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls := req.GetStringSlice("urls", nil)
		if len(urls) == 0 {
			return mcpError("urls is required"), nil
		}
		maxAnswers := req.GetInt("max_answers", 0)
		if maxAnswers < 0 {
			return mcpError("max_answers must not be negative"), nil
		}

		res, err := deps.Runs.Answer(ctx, AnswerRequest{
			URLs:       urls,
			Queries:    req.GetStringSlice("queries", nil),
			Model:      req.GetString("model", ""),
			MaxAnswers: maxAnswers,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("run %s failed: %v", res.RunID, err)), nil
		}

		b, err := json.Marshal(pipeline.FormatSQuAD(res.Records))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		docs, err := deps.Store.SearchBM25(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(docs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(newSearchHits(docs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Store.ListRuns(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		views := make([]runView, len(runs))
		for i, r := range runs {
			views[i] = newRunView(r, false)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
