package embedding

import (
	"context"
	"hash/fnv"
)

// MockEmbedder produces deterministic pseudo-random unit vectors from the
// text alone. The same text always embeds to the same vector, so exact-text
// matches land at distance zero, while different texts land far apart. Used
// in tests and as the degraded provider when ONNX is unavailable.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a deterministic embedder of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

var _ Embedder = (*MockEmbedder)(nil)

// Embed derives the vector from an FNV-1a seed of the text, expanded into a
// splitmix64 sequence and normalized to unit length.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	emb := make([]float32, e.dimensions)
	for i := range emb {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		// Map to (-1, 1).
		emb[i] = float32(int64(z)) / float32(1<<63)
	}
	NormalizeL2Slice(emb)
	return emb, nil
}

// EmbedBatch embeds each text independently.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
