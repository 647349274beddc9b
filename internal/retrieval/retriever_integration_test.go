//go:build integration

package retrieval

import (
	"context"
	"testing"

	"github.com/kalambet/ragdesk/internal/engine"
)

// TestIntegration_RetrieveRelevant runs against a local Ollama with
// nomic-embed-text pulled. It skips when Ollama is not reachable.
func TestIntegration_RetrieveRelevant(t *testing.T) {
	eng := engine.NewOllamaEngine("http://localhost:11434", engine.Options{})
	if !eng.IsRunning(context.Background()) {
		t.Skip("Ollama is not running, skipping integration test")
	}

	emb := NewEmbedder(eng, "nomic-embed-text")
	ix, err := Build(context.Background(), emb, []string{
		"Largest Contentful Paint measures when the main content of a page has loaded.",
		"Bananas are a good source of potassium.",
		"Time to First Byte is the delay before the first byte of the response arrives.",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dir := t.TempDir()
	if err := WriteBundle(context.Background(), dir, ix); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	loaded, err := ReadBundle(context.Background(), dir)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}

	chunks, err := NewRetriever(emb, loaded, 1).Retrieve(context.Background(), "How is LCP measured?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Position != 0 {
		t.Errorf("top chunk = %+v, want the LCP chunk", chunks)
	}
}
