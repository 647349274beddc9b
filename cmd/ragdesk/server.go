package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/ragdesk/internal/api"
	"github.com/kalambet/ragdesk/internal/chat"
	"github.com/kalambet/ragdesk/internal/composer"
	"github.com/kalambet/ragdesk/internal/config"
	"github.com/kalambet/ragdesk/internal/engine"
	"github.com/kalambet/ragdesk/internal/history"
	"github.com/kalambet/ragdesk/internal/ingest"
	"github.com/kalambet/ragdesk/internal/rag"
	"github.com/kalambet/ragdesk/internal/recommend"
	"github.com/kalambet/ragdesk/internal/retrieval"
	"github.com/kalambet/ragdesk/internal/storage"
	"github.com/kalambet/ragdesk/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ragdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpMode, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpMode)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running ragdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ragdesk system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

// app is the wired set of components behind the HTTP and MCP surfaces.
type app struct {
	store   *storage.Store
	vectors *vectorstore.Manager
	history *history.Manager
	chat    *chat.Service
	advisor *recommend.Advisor
	fetcher *ingest.Fetcher
	worker  *ingest.Worker
}

func buildApp(cfg config.Config, store *storage.Store, embedEng, genEng engine.Engine) *app {
	model := cfg.ChatModel()

	embedder := retrieval.NewEmbedder(embedEng, cfg.Ollama.EmbedModel)
	splitter := ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	vectors := vectorstore.NewManager(cfg.Storage.VectorstoreBasePath, embedder, store, splitter)

	hist := history.NewManager(store, history.NewLLMSummarizer(genEng, model))
	builder := rag.NewBuilder(vectors, rag.NewEngineGenerator(genEng, model), composer.New(0), cfg.RAG.TopK)
	fetcher := ingest.NewFetcher(&http.Client{Timeout: 15 * time.Second})

	return &app{
		store:   store,
		vectors: vectors,
		history: hist,
		chat:    chat.NewService(hist, builder, cfg.RAG.SummarizeThreshold),
		advisor: recommend.NewAdvisor(genEng, model),
		fetcher: fetcher,
		worker:  ingest.NewWorker(store, vectors, fetcher, 500*time.Millisecond),
	}
}

func (a *app) httpHandler(token string) http.Handler {
	return api.NewHandler(api.Deps{
		Vectors: a.vectors,
		Jobs:    a.store,
		Chat:    a.chat,
		History: a.history,
		Advisor: a.advisor,
		Fetcher: a.fetcher,
		Token:   token,
	})
}

func (a *app) mcpServer() *server.MCPServer {
	return api.NewMCPServer(api.MCPDeps{
		Vectors: a.vectors,
		Chat:    a.chat,
		History: a.history,
		Advisor: a.advisor,
		Version: version,
	})
}

// newEngines returns the embedding engine (always Ollama) and the engine
// that generates answers.
func newEngines(cfg config.Config) (embedEng, genEng engine.Engine, err error) {
	embedEng = engine.NewOllamaEngine(cfg.Ollama.BaseURL, engine.Options{})
	genEng, err = engine.New(engine.Config{
		Provider:      strings.ToLower(cfg.Generator.Provider),
		OllamaBaseURL: cfg.Ollama.BaseURL,
		APIKey:        cfg.Generator.APIKey,
		BaseURL:       cfg.Generator.BaseURL,
		Options: engine.Options{
			Temperature: cfg.Generator.Temperature,
			MaxTokens:   cfg.Generator.MaxTokens,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configuring generator: %w", err)
	}
	return embedEng, genEng, nil
}

func runServer(mcpMode bool) error {
	fmt.Fprintf(os.Stderr, "ragdesk %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	pid := newPIDFile(cfg.Storage.DataDir)
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer pid.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedEng, genEng, err := newEngines(cfg)
	if err != nil {
		return err
	}
	if err := engine.EnsureReady(ctx, embedEng, os.Stderr, cfg.Ollama.EmbedModel); err != nil {
		return fmt.Errorf("embedding backend at %s: %w", cfg.Ollama.BaseURL, err)
	}
	if err := engine.EnsureReady(ctx, genEng, os.Stderr, cfg.ChatModel()); err != nil {
		return fmt.Errorf("%s generator: %w", cfg.Generator.Provider, err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	a := buildApp(cfg, store, embedEng, genEng)
	go a.worker.Run(ctx)

	if cfg.Server.APIToken == "" {
		slog.Warn("no API token configured, HTTP endpoints are open to any local process")
	}
	if mcpMode {
		go serveMCP(ctx, a)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.httpHandler(cfg.Server.APIToken),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("ragdesk listening", "addr", addr, "generator", cfg.Generator.Provider, "model", cfg.ChatModel())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveMCP(ctx context.Context, a *app) {
	slog.Info("MCP tools available over stdio")
	err := server.NewStdioServer(a.mcpServer()).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("MCP stdio server stopped", "error", err)
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pid, err := newPIDFile(cfg.Storage.DataDir).Running()
	if err != nil {
		return err
	}
	if pid == 0 {
		printWarning("ragdesk is not running")
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stopping ragdesk (PID %d): %w", pid, err)
	}
	printSuccess("Sent stop signal to ragdesk (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pid, _ := newPIDFile(cfg.Storage.DataDir).Running()
	if healthy(ctx, cfg.Server.Port) {
		printStatus("Server", "running on port %d (PID %d)", cfg.Server.Port, pid)
	} else {
		printStatus("Server", "stopped")
	}

	embedEng, genEng, err := newEngines(cfg)
	if err != nil {
		printStatus("Generator", "misconfigured: %v", err)
		return nil
	}
	printStatus("Ollama", "%s (%s)", upDown(embedEng.IsRunning(ctx)), cfg.Ollama.BaseURL)
	printStatus("Embed model", "%s%s", cfg.Ollama.EmbedModel, missing(embedEng.HasModel(ctx, cfg.Ollama.EmbedModel)))
	printStatus("Generator", "%s, %s%s", cfg.Generator.Provider, cfg.ChatModel(), missing(genEng.HasModel(ctx, cfg.ChatModel())))

	if entries, err := os.ReadDir(cfg.Storage.VectorstoreBasePath); err == nil {
		printStatus("Vectorstores", "%d in %s", countDirs(entries), cfg.Storage.VectorstoreBasePath)
	} else {
		printStatus("Vectorstores", "none in %s", cfg.Storage.VectorstoreBasePath)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func healthy(ctx context.Context, port int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/health", port), nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func upDown(up bool) string {
	if up {
		return "reachable"
	}
	return "not reachable"
}

func missing(present bool) string {
	if present {
		return ""
	}
	return " (not available)"
}

func countDirs(entries []os.DirEntry) int {
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}
