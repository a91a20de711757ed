// Package embedding provides dense text embedders (hashing, ONNX, OpenAI-compatible) and caching.
package embedding

import "context"

// Embedder produces dense vector embeddings for text.
// Implementations must be deterministic for a fixed model: the same text always
// yields the same vector, and every vector has Dimensions() entries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the model; it is recorded with a collection to detect model changes.
	Name() string
	Close() error
}

// embedEach runs embed for every text in order. Shared by embedders without a native batch call.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
