package classify

import (
	"context"
	"fmt"
	"math"
	"sync"

	"aida/internal/registry"
)

// SimilarityIndex holds pre-computed embeddings for every example phrase in
// the catalog and answers max-similarity queries against them. Safe for
// concurrent use once primed.
type SimilarityIndex struct {
	embedder Embedder

	mu       sync.RWMutex
	examples map[string][][]float32 // capability name → example vectors
}

// NewSimilarityIndex creates an index backed by the given embedder. The
// index is empty until Prime is called.
func NewSimilarityIndex(e Embedder) *SimilarityIndex {
	return &SimilarityIndex{
		embedder: e,
		examples: make(map[string][][]float32),
	}
}

// Prime embeds every example phrase of every descriptor in the registry.
// This is the one-time model-loading step: a failure here means the
// similarity backend is unavailable and the caller should fall back to
// keyword-only classification.
func (s *SimilarityIndex) Prime(ctx context.Context, reg *registry.Registry) error {
	vectors := make(map[string][][]float32, reg.Len())
	for _, d := range reg.All() {
		vecs := make([][]float32, 0, len(d.Examples))
		for _, ex := range d.Examples {
			vec, err := s.embedder.Embed(ctx, ex)
			if err != nil {
				return fmt.Errorf("similarity: embed example for %q: %w", d.Name, err)
			}
			if vec == nil {
				return fmt.Errorf("similarity: embedder returned no vector for %q: %w", d.Name, ErrModelUnavailable)
			}
			vecs = append(vecs, vec)
		}
		vectors[d.Name] = vecs
	}

	s.mu.Lock()
	s.examples = vectors
	s.mu.Unlock()
	return nil
}

// QueryVector embeds the utterance for use with MaxSimilarity. A nil vector
// with no error means the backend is unavailable.
func (s *SimilarityIndex) QueryVector(ctx context.Context, utterance string) ([]float32, error) {
	return s.embedder.Embed(ctx, utterance)
}

// MaxSimilarity returns the highest cosine similarity between the query
// vector and any example vector of the named capability, together with the
// index of the best-matching example. Returns (0, -1) when the capability
// has no primed examples.
func (s *SimilarityIndex) MaxSimilarity(name string, query []float32) (float64, int) {
	s.mu.RLock()
	vecs := s.examples[name]
	s.mu.RUnlock()

	best, bestIdx := 0.0, -1
	for i, v := range vecs {
		if sim := cosine(query, v); sim > best {
			best, bestIdx = sim, i
		}
	}
	return best, bestIdx
}

// cosine returns the cosine similarity of two vectors, clamped to [0, 1].
// Mismatched lengths or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
