package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/pageqa/internal/api"
	"github.com/kalambet/pageqa/internal/config"
	"github.com/kalambet/pageqa/internal/engine"
	"github.com/kalambet/pageqa/internal/ingest"
	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pageqa HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pageqa server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pageqa system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pageqa.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "pageqa version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("pageqa is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("pageqa is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, pipeline.WithCompletionHook(func(r pipeline.CompletionReport) {
		slog.Info("crawled content", "dir", r.ArtifactsDir, "state", r.State, "duration", r.Duration)
	}))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := engine.EnsureReady(ctx, a.eng, os.Stderr, a.requiredModels("")...); err != nil {
		return err
	}

	runs := api.NewRunService(a.orch, a.store, a.defaults())
	if cfg.Server.Token == "" {
		slog.Warn("no server token configured; /v1 routes are unauthenticated")
	}
	handler := api.NewHandler(api.AppDeps{
		Runs:  runs,
		Store: a.store,
		Token: cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Embed documents indexed before embedding mode was switched on.
	if a.embedder != nil {
		worker := ingest.NewWorker(a.store, a.vectors, a.embedder, 2*time.Second)
		go worker.Run(ctx)
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Runs:    runs,
			Store:   a.store,
			Version: version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "pageqa listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pageqa is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pageqa (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pageqa (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Partial status is still useful.
		printError("config error: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL)
	running := eng.IsRunning(ctx)
	if !running {
		printStatus("Model server", "not running at %s", cfg.Ollama.BaseURL)
	} else if v, err := eng.Version(ctx); err == nil {
		printStatus("Model server", "running at %s (version %s)", cfg.Ollama.BaseURL, v)
	} else {
		printStatus("Model server", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Reader model", "%s%s", cfg.Reader.Model, modelState(ctx, eng, running, cfg.Reader.Model))
	if cfg.Retrieval.Mode == config.RetrievalEmbedding {
		printStatus("Embed model", "%s%s", cfg.Ollama.EmbedModel, modelState(ctx, eng, running, cfg.Ollama.EmbedModel))
	}
	printStatus("Retrieval", "%s (top_k %d)", cfg.Retrieval.Mode, cfg.Retrieval.TopK)

	if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
		if n, err := store.CountDocuments(ctx); err == nil {
			printStatus("Documents", "%d", n)
		}
		store.Close()
	} else {
		printStatus("Documents", "unavailable (%v)", err)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config file", "%s", config.Path())
	return nil
}

func modelState(ctx context.Context, eng engine.Engine, running bool, model string) string {
	if !running {
		return ""
	}
	if eng.HasModel(ctx, model) {
		return " (available)"
	}
	return " (not pulled)"
}
