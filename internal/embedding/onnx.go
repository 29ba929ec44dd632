//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a local sentence-transformer model through ONNX Runtime.
// It requires CGO and the onnxruntime shared library. Sessions are created
// without fixed tensors so a whole catalog batch can be pushed through a
// single Run call.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	dimensions int
	maxTokens  int
	cache      *Cache
	tokenizer  Tokenizer
	mu         sync.Mutex
}

var _ Embedder = (*ONNXEmbedder)(nil)

// NewONNXEmbedder loads the model at modelPath. InitializeEnvironment is
// idempotent, so repeated construction is safe.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:    session,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      NewCache(cacheSize),
		tokenizer:  &HashTokenizer{},
	}, nil
}

// Embed returns the embedding for a single text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order. Cached texts are served from the
// cache; the remaining ones go through the model in one inference call.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	var missTexts []string
	var missIndex []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			embeddings[i] = cached
			continue
		}
		missTexts = append(missTexts, text)
		missIndex = append(missIndex, i)
	}
	if len(missTexts) == 0 {
		return embeddings, nil
	}

	vecs, err := e.run(missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		e.cache.Set(missTexts[j], vec)
		embeddings[missIndex[j]] = vec
	}
	return embeddings, nil
}

// run performs one batched inference over texts.
func (e *ONNXEmbedder) run(texts []string) ([][]float32, error) {
	n := len(texts)
	inputIDs := make([]int64, n*e.maxTokens)
	attentionMask := make([]int64, n*e.maxTokens)
	tokenTypeIDs := make([]int64, n*e.maxTokens)
	for i, text := range texts {
		ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
		copy(inputIDs[i*e.maxTokens:], ids)
		copy(attentionMask[i*e.maxTokens:], mask)
		copy(tokenTypeIDs[i*e.maxTokens:], types)
	}

	inputShape := ort.NewShape(int64(n), int64(e.maxTokens))
	inputIDsTensor, err := ort.NewTensor(inputShape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()
	attentionMaskTensor, err := ort.NewTensor(inputShape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()
	tokenTypeIDsTensor, err := ort.NewTensor(inputShape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDsTensor.Destroy()

	outputData := make([]float32, n*e.dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(int64(n), int64(e.dimensions)), outputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	e.mu.Lock()
	err = e.session.Run(
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := outputTensor.GetData()
	vecs := make([][]float32, n)
	for i := range vecs {
		vec := make([]float32, e.dimensions)
		copy(vec, out[i*e.dimensions:(i+1)*e.dimensions])
		NormalizeL2Slice(vec)
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the inference session.
func (e *ONNXEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
