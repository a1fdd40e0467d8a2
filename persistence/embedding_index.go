// Package persistence holds the on-disk stores: the versioned embedding
// cache and the staged spec documents. Everything lives under a
// project-local .sidekick directory.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/index"
)

// CacheVersion tags the embedding cache format. A mismatch on load forces
// a full rebuild rather than attempting migration.
const CacheVersion = "2"

const (
	// EmbeddingDims is the vector size the embedding service returns.
	EmbeddingDims = 768
	embedBatchSize = 100
	descriptorCap  = 500
)

// indexData is the persisted cache payload.
type indexData struct {
	Version     string               `json:"version"`
	Root        string               `json:"root"`
	Chunks      []*index.Chunk       `json:"chunks"`
	FileVectors map[string][]float64 `json:"file_vectors"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// SemanticMatch is one nearest-neighbor hit.
type SemanticMatch struct {
	Chunk *index.Chunk
	Score float64
}

// EmbeddingIndex owns the chunk list with vectors, per-file averaged
// vectors, and the versioned cache file. It implements index.EmbeddingUpdater
// so the file watcher can feed incremental updates through it.
type EmbeddingIndex struct {
	mu        sync.RWMutex
	root      string
	cachePath string
	embedder  framework.Embedder
	data      *indexData
	debug     bool
}

// NewEmbeddingIndex loads the cache for root if present and version-valid.
func NewEmbeddingIndex(root string, embedder framework.Embedder) (*EmbeddingIndex, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	ei := &EmbeddingIndex{
		root:      abs,
		cachePath: filepath.Join(abs, ".sidekick", "embeddings.json"),
		embedder:  embedder,
	}
	ei.load()
	return ei, nil
}

func (ei *EmbeddingIndex) load() {
	payload, err := os.ReadFile(ei.cachePath)
	if err != nil {
		return
	}
	var data indexData
	if err := json.Unmarshal(payload, &data); err != nil {
		log.Printf("[embeddings] cache unreadable, ignoring: %v", err)
		return
	}
	if data.Version != CacheVersion {
		log.Printf("[embeddings] cache version %q != %q, full rebuild required", data.Version, CacheVersion)
		return
	}
	ei.data = &data
}

// Ready reports whether a loaded or built index exists.
func (ei *EmbeddingIndex) Ready() bool {
	ei.mu.RLock()
	defer ei.mu.RUnlock()
	return ei.data != nil
}

// ChunkCount returns the number of indexed chunks.
func (ei *EmbeddingIndex) ChunkCount() int {
	ei.mu.RLock()
	defer ei.mu.RUnlock()
	if ei.data == nil {
		return 0
	}
	return len(ei.data.Chunks)
}

// UpdatedAt returns the cache timestamp, zero when no index exists.
func (ei *EmbeddingIndex) UpdatedAt() time.Time {
	ei.mu.RLock()
	defer ei.mu.RUnlock()
	if ei.data == nil {
		return time.Time{}
	}
	return ei.data.UpdatedAt
}

// IndexChunks embeds every chunk in batches, derives per-file average
// vectors, and persists the cache. A chunk whose embedding call fails gets
// a zero vector so one bad chunk never aborts the whole build.
func (ei *EmbeddingIndex) IndexChunks(ctx context.Context, chunks []*index.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		for _, chunk := range chunks[start:end] {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			vector, err := ei.embedder.Embed(ctx, chunkDescriptor(chunk))
			if err != nil {
				log.Printf("[embeddings] embed %s chunk at %s:%d failed, using zero vector: %v", chunk.Kind, chunk.File, chunk.StartLine, err)
				vector = make([]float64, EmbeddingDims)
			}
			chunk.Embedding = vector
		}
	}

	data := &indexData{
		Version:     CacheVersion,
		Root:        ei.root,
		Chunks:      chunks,
		FileVectors: averageByFile(chunks),
		UpdatedAt:   time.Now().UTC(),
	}
	ei.mu.Lock()
	ei.data = data
	ei.mu.Unlock()
	return ei.Save()
}

// chunkDescriptor builds the text actually embedded: kind, name, and a
// capped slice of content.
func chunkDescriptor(chunk *index.Chunk) string {
	content := chunk.Content
	if len(content) > descriptorCap {
		content = content[:descriptorCap]
	}
	if chunk.Name != "" {
		return fmt.Sprintf("%s %s: %s", chunk.Kind, chunk.Name, content)
	}
	return fmt.Sprintf("%s: %s", chunk.Kind, content)
}

func averageByFile(chunks []*index.Chunk) map[string][]float64 {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		if sums[chunk.File] == nil {
			sums[chunk.File] = make([]float64, len(chunk.Embedding))
		}
		for i, v := range chunk.Embedding {
			sums[chunk.File][i] += v
		}
		counts[chunk.File]++
	}
	for file, sum := range sums {
		n := float64(counts[file])
		for i := range sum {
			sum[i] /= n
		}
	}
	return sums
}

// Search embeds the query once and ranks every chunk by cosine similarity,
// returning the top k.
func (ei *EmbeddingIndex) Search(ctx context.Context, query string, k int) ([]SemanticMatch, error) {
	ei.mu.RLock()
	data := ei.data
	ei.mu.RUnlock()
	if data == nil {
		return nil, fmt.Errorf("no embedding index; run a full index first")
	}
	if k <= 0 {
		k = 5
	}
	queryVec, err := ei.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches := make([]SemanticMatch, 0, len(data.Chunks))
	for _, chunk := range data.Chunks {
		matches = append(matches, SemanticMatch{Chunk: chunk, Score: CosineSimilarity(queryVec, chunk.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// RemoveFile drops a file's chunks and its averaged vector.
func (ei *EmbeddingIndex) RemoveFile(rel string) {
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if ei.data == nil {
		return
	}
	kept := ei.data.Chunks[:0]
	for _, chunk := range ei.data.Chunks {
		if chunk.File != rel {
			kept = append(kept, chunk)
		}
	}
	ei.data.Chunks = kept
	delete(ei.data.FileVectors, rel)
}

// ReindexFile embeds fresh chunks for one file and recomputes just that
// file's average vector.
func (ei *EmbeddingIndex) ReindexFile(ctx context.Context, rel string, chunks []*index.Chunk) error {
	for _, chunk := range chunks {
		vector, err := ei.embedder.Embed(ctx, chunkDescriptor(chunk))
		if err != nil {
			log.Printf("[embeddings] embed %s:%d failed, using zero vector: %v", chunk.File, chunk.StartLine, err)
			vector = make([]float64, EmbeddingDims)
		}
		chunk.Embedding = vector
	}
	ei.mu.Lock()
	defer ei.mu.Unlock()
	if ei.data == nil {
		return fmt.Errorf("no embedding index")
	}
	ei.data.Chunks = append(ei.data.Chunks, chunks...)
	if avg := averageByFile(chunks); avg[rel] != nil {
		ei.data.FileVectors[rel] = avg[rel]
	}
	ei.data.UpdatedAt = time.Now().UTC()
	return nil
}

// Save writes the cache file, creating the .sidekick directory as needed.
func (ei *EmbeddingIndex) Save() error {
	ei.mu.RLock()
	defer ei.mu.RUnlock()
	if ei.data == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(ei.cachePath), 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(ei.data)
	if err != nil {
		return err
	}
	return os.WriteFile(ei.cachePath, payload, 0o644)
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0, never NaN.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
