package persistence

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/lexcodex/sidekick/index"
)

// stubEmbedder hands out fixed vectors keyed by substring, failing on
// request.
type stubEmbedder struct {
	vectors map[string][]float64
	failOn  string
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	s.calls++
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, fmt.Errorf("embedding service unavailable")
	}
	for key, vec := range s.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return []float64{1, 0, 0}, nil
}

func TestCosineSimilarityBounds(t *testing.T) {
	cases := []struct {
		a, b []float64
	}{
		{[]float64{1, 2, 3}, []float64{4, 5, 6}},
		{[]float64{1, 0}, []float64{0, 1}},
		{[]float64{-1, -2}, []float64{3, 4}},
	}
	for _, tc := range cases {
		score := CosineSimilarity(tc.a, tc.b)
		if math.IsNaN(score) || score < -1.0000001 || score > 1.0000001 {
			t.Fatalf("similarity %v out of bounds for %v %v", score, tc.a, tc.b)
		}
	}
	if score := CosineSimilarity([]float64{0, 0, 0}, []float64{1, 2, 3}); score != 0 {
		t.Fatalf("zero vector similarity should be exactly 0, got %v", score)
	}
	if score := CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}); score != 0 {
		t.Fatalf("mismatched lengths should score 0, got %v", score)
	}
}

func TestIndexChunksAndSearch(t *testing.T) {
	root := t.TempDir()
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"parseConfig": {1, 0, 0},
		"renderView":  {0, 1, 0},
		"config":      {0.9, 0.1, 0},
	}}
	ei, err := NewEmbeddingIndex(root, embedder)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	chunks := []*index.Chunk{
		{File: "config.ts", StartLine: 1, EndLine: 10, Kind: index.ChunkFunction, Name: "parseConfig", Content: "function parseConfig() {}"},
		{File: "view.ts", StartLine: 1, EndLine: 10, Kind: index.ChunkFunction, Name: "renderView", Content: "function renderView() {}"},
	}
	if err := ei.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("index: %v", err)
	}
	if !ei.Ready() {
		t.Fatal("index should be ready after build")
	}

	matches, err := ei.Search(context.Background(), "where is the config parsed", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Chunk.Name != "parseConfig" {
		t.Fatalf("expected parseConfig as top match, got %+v", matches)
	}
}

func TestFailedChunkEmbeddingDegradesToZeroVector(t *testing.T) {
	root := t.TempDir()
	embedder := &stubEmbedder{
		vectors: map[string][]float64{"good": {0, 1, 0}},
		failOn:  "broken",
	}
	ei, err := NewEmbeddingIndex(root, embedder)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	chunks := []*index.Chunk{
		{File: "a.ts", StartLine: 1, Kind: index.ChunkFunction, Name: "broken", Content: "broken"},
		{File: "b.ts", StartLine: 1, Kind: index.ChunkFunction, Name: "good", Content: "good"},
	}
	if err := ei.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("index should tolerate per-chunk failure: %v", err)
	}
	if len(chunks[0].Embedding) != EmbeddingDims {
		t.Fatalf("failed chunk should carry a %d-dim zero vector, got %d", EmbeddingDims, len(chunks[0].Embedding))
	}

	matches, err := ei.Search(context.Background(), "good", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if matches[0].Chunk.Name != "good" {
		t.Fatalf("zero-vector chunk must rank last, got %+v", matches[0].Chunk)
	}
	if matches[1].Score != 0 {
		t.Fatalf("zero-vector chunk score should be 0, got %v", matches[1].Score)
	}
}

func TestCacheRoundTripAndVersionInvalidation(t *testing.T) {
	root := t.TempDir()
	embedder := &stubEmbedder{vectors: map[string][]float64{"thing": {1, 0, 0}}}
	ei, err := NewEmbeddingIndex(root, embedder)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	chunks := []*index.Chunk{{File: "t.ts", StartLine: 1, Kind: index.ChunkFunction, Name: "thing", Content: "thing"}}
	if err := ei.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("index: %v", err)
	}

	reloaded, err := NewEmbeddingIndex(root, embedder)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Ready() || reloaded.ChunkCount() != 1 {
		t.Fatalf("expected cache to round-trip, ready=%v count=%d", reloaded.Ready(), reloaded.ChunkCount())
	}

	// A stale version tag invalidates the whole cache.
	reloaded.data.Version = "0"
	if err := reloaded.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	stale, err := NewEmbeddingIndex(root, embedder)
	if err != nil {
		t.Fatalf("reload stale: %v", err)
	}
	if stale.Ready() {
		t.Fatal("version mismatch must force a rebuild")
	}
}

func TestRemoveAndReindexFile(t *testing.T) {
	root := t.TempDir()
	embedder := &stubEmbedder{vectors: map[string][]float64{"alpha": {1, 0}, "beta": {0, 1}}}
	ei, err := NewEmbeddingIndex(root, embedder)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	chunks := []*index.Chunk{
		{File: "a.ts", StartLine: 1, Kind: index.ChunkFunction, Name: "alpha", Content: "alpha"},
		{File: "b.ts", StartLine: 1, Kind: index.ChunkFunction, Name: "beta", Content: "beta"},
	}
	if err := ei.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatalf("index: %v", err)
	}

	ei.RemoveFile("a.ts")
	if ei.ChunkCount() != 1 {
		t.Fatalf("expected 1 chunk after removal, got %d", ei.ChunkCount())
	}
	if ei.data.FileVectors["a.ts"] != nil {
		t.Fatal("file vector should be dropped with the file")
	}

	fresh := []*index.Chunk{{File: "a.ts", StartLine: 1, Kind: index.ChunkFunction, Name: "alpha", Content: "alpha v2"}}
	if err := ei.ReindexFile(context.Background(), "a.ts", fresh); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if ei.ChunkCount() != 2 {
		t.Fatalf("expected 2 chunks after reindex, got %d", ei.ChunkCount())
	}
	if ei.data.FileVectors["a.ts"] == nil {
		t.Fatal("file vector should be recomputed for reindexed file")
	}
}
