package retrieval

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of chunks returned per query.
const DefaultTopK = 5

// Retriever combines embedding and index search to find relevant context.
type Retriever struct {
	embedder *Embedder
	index    *Index
	topK     int
}

// NewRetriever creates a Retriever over index. topK <= 0 selects DefaultTopK.
func NewRetriever(embedder *Embedder, index *Index, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// Retrieve embeds the query and returns the most similar chunks, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]ScoredChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	chunks, err := r.index.Search(vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return chunks, nil
}

// Texts returns the chunk texts in rank order.
func Texts(chunks []ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
