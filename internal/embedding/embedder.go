// Package embedding provides text embedding providers and caching.
package embedding

import "context"

// Embedder produces fixed-width vector embeddings for text. EmbedBatch
// returns one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
