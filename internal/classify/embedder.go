package classify

import "context"

// Embedder produces vector embeddings for text. Implementations range from
// a no-op stub (keyword-only deployments) to an OpenAI-compatible HTTP
// backend. When the embedder yields no vectors the classifier runs in
// keyword fallback mode.
type Embedder interface {
	// Embed produces a vector embedding for the given text.
	// Returns nil with no error when embedding is not available (noop).
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NoopEmbedder is a stub Embedder that returns nil vectors. Wiring it as the
// active embedder disables semantic similarity scoring entirely.
type NoopEmbedder struct{}

// Embed returns nil with no error, signalling that embedding is unavailable.
func (NoopEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

var _ Embedder = NoopEmbedder{}
