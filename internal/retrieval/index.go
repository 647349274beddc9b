package retrieval

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// index dimensions.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one indexed text fragment. Position is its order in the source
// document and is stable across persist and load.
type Chunk struct {
	Position  int
	Text      string
	Embedding []float32
}

// ScoredChunk is a Chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Index holds chunk embeddings in memory and answers top-K cosine queries by
// brute force. It is built once per ingest and is read-only afterwards.
type Index struct {
	embedModel string
	dimensions int
	chunks     []Chunk
}

// NewIndex returns an empty index for vectors produced by embedModel.
func NewIndex(embedModel string) *Index {
	return &Index{embedModel: embedModel}
}

// Build embeds texts with the embedder and returns a fresh index holding them
// in input order.
func Build(ctx context.Context, e *Embedder, texts []string) (*Index, error) {
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	ix := NewIndex(e.Model())
	for i, text := range texts {
		if err := ix.Add(text, vecs[i]); err != nil {
			return nil, fmt.Errorf("indexing chunk %d: %w", i, err)
		}
	}
	return ix, nil
}

// Add appends a chunk. The first vector fixes the index dimensions.
func (ix *Index) Add(text string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if ix.dimensions == 0 {
		ix.dimensions = len(vec)
	} else if len(vec) != ix.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dimensions)
	}
	ix.chunks = append(ix.chunks, Chunk{Position: len(ix.chunks), Text: text, Embedding: vec})
	return nil
}

func (ix *Index) EmbedModel() string { return ix.embedModel }
func (ix *Index) Dimensions() int    { return ix.dimensions }
func (ix *Index) Len() int           { return len(ix.chunks) }

// Chunks returns the indexed chunks in position order. The slice is shared.
func (ix *Index) Chunks() []Chunk { return ix.chunks }

// Search returns up to topK chunks most similar to vector, best first. Equal
// scores keep position order.
func (ix *Index) Search(vector []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != ix.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), ix.dimensions)
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &scoredHeap{}
	heap.Init(h)
	for _, c := range ix.chunks {
		s := ScoredChunk{Chunk: c, Score: dotProduct(vector, c.Embedding, queryNorm)}
		if h.Len() < topK {
			heap.Push(h, s)
		} else if worse((*h)[0], s) {
			(*h)[0] = s
			heap.Fix(h, 0)
		}
	}

	results := make([]ScoredChunk, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(ScoredChunk)
	}
	return results, nil
}

// worse reports whether a ranks below b: lower score, or equal score and a
// later position.
func worse(a, b ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Position > b.Position
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// dotProduct computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func dotProduct(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// scoredHeap is a min-heap with the worst-ranked chunk at the root.
type scoredHeap []ScoredChunk

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)        { *h = append(*h, x.(ScoredChunk)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
