package discovery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sciforge/toolbridge/registry"
)

// Embedder turns texts into vectors. It is a pluggable capability with a
// narrow contract; the OpenAI-backed implementation lives in openai.go.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type indexEntry struct {
	name        string
	description string
	vector      []float32
}

// EmbeddingIndex is an in-memory vector index over tool descriptions,
// queried by cosine nearest-neighbor similarity.
type EmbeddingIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  []indexEntry
}

// BuildIndex embeds every descriptor currently in the store. Building is a
// startup-time operation; the returned index is safe for concurrent searches.
func BuildIndex(ctx context.Context, store *registry.Store, embedder Embedder) (*EmbeddingIndex, error) {
	tools := store.List(nil)
	if len(tools) == 0 {
		return &EmbeddingIndex{embedder: embedder}, nil
	}

	texts := make([]string, len(tools))
	for i, d := range tools {
		texts[i] = d.Name + ": " + d.Description
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding tool descriptions: %w", err)
	}
	if len(vectors) != len(tools) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(tools))
	}

	ix := &EmbeddingIndex{embedder: embedder}
	for i, d := range tools {
		ix.entries = append(ix.entries, indexEntry{
			name:        d.Name,
			description: d.Description,
			vector:      vectors[i],
		})
	}
	return ix, nil
}

// Search embeds the query and returns the nearest entries whose names appear
// in scope, best first.
func (ix *EmbeddingIndex) Search(ctx context.Context, query string, limit int, scope map[string]bool) ([]Match, error) {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for the query", len(vectors))
	}
	qv := vectors[0]

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matches []Match
	for _, e := range ix.entries {
		if scope != nil && !scope[e.name] {
			continue
		}
		matches = append(matches, Match{
			Name:        e.name,
			Description: e.description,
			Score:       cosine(qv, e.vector),
			Method:      MethodEmbedding,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// cosine computes cosine similarity between two vectors of equal length.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
