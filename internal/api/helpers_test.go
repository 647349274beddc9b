package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/ragdesk/internal/chat"
	"github.com/kalambet/ragdesk/internal/engine"
	"github.com/kalambet/ragdesk/internal/history"
	"github.com/kalambet/ragdesk/internal/ingest"
	"github.com/kalambet/ragdesk/internal/rag"
	"github.com/kalambet/ragdesk/internal/recommend"
	"github.com/kalambet/ragdesk/internal/retrieval"
	"github.com/kalambet/ragdesk/internal/storage"
	"github.com/kalambet/ragdesk/internal/vectorstore"
)

const testToken = "test-token-12345"

// stubEngine embeds texts by letter counts and answers every chat with
// reply, or fails with chatErr.
type stubEngine struct {
	engine.Engine
	mu      sync.Mutex
	reply   string
	chatErr error
}

func (e *stubEngine) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	v := make([]float32, 27)
	v[26] = 0.1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v, nil
}

func (e *stubEngine) Chat(context.Context, string, []engine.Message) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reply, e.chatErr
}

func (e *stubEngine) set(reply string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reply, e.chatErr = reply, err
}

type testEnv struct {
	store   *storage.Store
	eng     *stubEngine
	vectors *vectorstore.Manager
	history *history.Manager
	chat    *chat.Service
	advisor *recommend.Advisor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := &stubEngine{reply: "stub answer"}
	emb := retrieval.NewEmbedder(eng, "nomic-embed-text")
	vectors := vectorstore.NewManager(t.TempDir(), emb, store,
		ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap))
	hist := history.NewManager(store, history.NewLLMSummarizer(eng, "llama3.2"))
	builder := rag.NewBuilder(vectors, rag.NewEngineGenerator(eng, "llama3.2"), nil, retrieval.DefaultTopK)

	return &testEnv{
		store:   store,
		eng:     eng,
		vectors: vectors,
		history: hist,
		chat:    chat.NewService(hist, builder, history.DefaultThreshold),
		advisor: recommend.NewAdvisor(eng, "llama3.2"),
	}
}

func (e *testEnv) handler(token string, fetcher URLFetcher) http.Handler {
	return NewHandler(Deps{
		Vectors: e.vectors,
		Jobs:    e.store,
		Chat:    e.chat,
		History: e.history,
		Advisor: e.advisor,
		Fetcher: fetcher,
		Token:   token,
	})
}

func (e *testEnv) mcpDeps() MCPDeps {
	return MCPDeps{
		Vectors: e.vectors,
		Chat:    e.chat,
		History: e.history,
		Advisor: e.advisor,
	}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}
