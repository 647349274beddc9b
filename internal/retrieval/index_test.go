package retrieval

import (
	"context"
	"errors"
	"testing"
)

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestIndex_AddAndSearch(t *testing.T) {
	ix := NewIndex("nomic-embed-text")
	vec := makeTestVector(768, 0.1)
	if err := ix.Add("Go is a compiled language", vec); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := ix.Search(vec, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %f, want > 0.99", results[0].Score)
	}
	if results[0].Text != "Go is a compiled language" {
		t.Errorf("Text = %q", results[0].Text)
	}
}

func TestIndex_SearchTopKOrdered(t *testing.T) {
	ix := NewIndex("m")
	ix.Add("x-axis", []float32{1, 0})
	ix.Add("diagonal", []float32{1, 1})
	ix.Add("y-axis", []float32{0, 1})
	ix.Add("mostly-x", []float32{1, 0.1})

	results, err := ix.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"x-axis", "mostly-x", "diagonal"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		if results[i].Text != w {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Text, w)
		}
	}
}

func TestIndex_SearchTiesKeepPositionOrder(t *testing.T) {
	ix := NewIndex("m")
	for _, text := range []string{"a", "b", "c"} {
		ix.Add(text, []float32{1, 0})
	}

	results, err := ix.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Text != "a" || results[1].Text != "b" {
		t.Errorf("results = %+v, want a then b", results)
	}
}

func TestIndex_SearchFewerThanTopK(t *testing.T) {
	ix := NewIndex("m")
	ix.Add("only", []float32{1, 0})

	results, err := ix.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestIndex_SearchEmpty(t *testing.T) {
	ix := NewIndex("m")
	results, err := ix.Search(makeTestVector(768, 0.1), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix := NewIndex("m")
	if err := ix.Add("a", []float32{1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ix.Add("b", []float32{1, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := ix.Search([]float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search err = %v, want ErrDimensionMismatch", err)
	}
}

func TestIndex_ZeroQuery(t *testing.T) {
	ix := NewIndex("m")
	ix.Add("a", []float32{1, 0})
	results, err := ix.Search([]float32{0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for a zero query, want 0", len(results))
	}
}

func TestBuild(t *testing.T) {
	mock := &funcEngine{
		embedFn: func(text string) ([]float32, error) {
			return []float32{float32(len(text)), 1}, nil
		},
	}
	ix, err := Build(context.Background(), NewEmbedder(mock, "nomic-embed-text"), []string{"one", "three"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != 2 || ix.Dimensions() != 2 || ix.EmbedModel() != "nomic-embed-text" {
		t.Errorf("index = len %d dims %d model %q", ix.Len(), ix.Dimensions(), ix.EmbedModel())
	}
	if ix.Chunks()[1].Position != 1 || ix.Chunks()[1].Text != "three" {
		t.Errorf("chunk 1 = %+v", ix.Chunks()[1])
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.125}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for a truncated blob")
	}
}
