package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/ragdesk/internal/engine"
)

const (
	// batchSize is the number of chunks per request to a batch-capable engine.
	batchSize = 32
	// maxInflight bounds concurrent embedding requests.
	maxInflight = 4
)

// Embedder turns text into vectors with one embedding model.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder returns an Embedder calling model on e.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model names the embedding model. Persisted indexes record it so a reload
// under a different model is rejected.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding with %s: empty vector", e.model)
	}
	return vec, nil
}

// EmbedBatch returns one vector per text, in input order. Engines that
// implement engine.BatchEmbedder receive batchSize texts per request;
// others are called once per text. Empty input yields nil.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)

	if be, ok := e.engine.(engine.BatchEmbedder); ok {
		for start := 0; start < len(texts); start += batchSize {
			end := min(start+batchSize, len(texts))
			g.Go(func() error {
				vecs, err := be.EmbedBatch(gctx, e.model, texts[start:end])
				if err != nil {
					return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
				}
				if len(vecs) != end-start {
					return fmt.Errorf("embedding chunks %d-%d: got %d vectors", start, end-1, len(vecs))
				}
				copy(out[start:end], vecs)
				return nil
			})
		}
	} else {
		for i, text := range texts {
			g.Go(func() error {
				vec, err := e.engine.Embed(gctx, e.model, text)
				if err != nil {
					return fmt.Errorf("embedding chunk %d: %w", i, err)
				}
				out[i] = vec
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
