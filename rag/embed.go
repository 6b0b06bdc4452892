package rag

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/bizbot-il/bizbot/llmutils"
	"github.com/bizbot-il/bizbot/log"
)

// embedBatchSize is the provider's maximum inputs per call.
const embedBatchSize = 100

// DefaultEmbeddingDim matches text-embedding-3-small and is used for
// the local fallback so dimensions stay stable across provider and
// fallback vectors.
const DefaultEmbeddingDim = 1536

// Embedder turns texts into unit-length vectors. Provider failures
// fall back to deterministic hash-derived vectors so retrieval keeps
// working offline (with collapsed relevance) instead of erroring.
type Embedder struct {
	client    llmutils.EmbeddingClient
	model     string
	dimension int

	warnFallback sync.Once
}

// NewEmbedder creates an embedder for the given model. A nil client
// means fallback-only mode (used by tests and keyless deployments).
func NewEmbedder(client llmutils.EmbeddingClient, model string) *Embedder {
	return &Embedder{
		client:    client,
		model:     model,
		dimension: DefaultEmbeddingDim,
	}
}

// Dimension returns the vector width this embedder produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed returns one unit-length vector per input text, batching
// provider calls at the provider limit.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = cleanInput(t)
	}

	if e.client == nil {
		return e.localBatch(cleaned), nil
	}

	vectors := make([][]float32, 0, len(cleaned))
	for start := 0; start < len(cleaned); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(cleaned) {
			end = len(cleaned)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: cleaned[start:end],
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			e.warnFallback.Do(func() {
				log.Log.Warnf("[Embedder] provider failed (%v), using local fallback embeddings. These are NOT semantically meaningful.", err)
			})
			return e.localBatch(cleaned), nil
		}

		for _, item := range resp.Data {
			v := make([]float32, len(item.Embedding))
			copy(v, item.Embedding)
			normalize(v)
			vectors = append(vectors, v)
		}
	}

	if len(vectors) > 0 {
		e.dimension = len(vectors[0])
	}
	return vectors, nil
}

// EmbedOne embeds a single text (queries).
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}

func (e *Embedder) localBatch(texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = localEmbedding(t, e.dimension)
	}
	return vectors
}

// cleanInput whitespace-normalizes an embedding input and coerces it
// to non-empty, as the provider rejects empty strings.
func cleanInput(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return "empty"
	}
	return text
}

// localEmbedding derives a deterministic unit vector by iterated
// hashing. Not semantically meaningful; it only keeps the pipeline
// alive when the provider is unreachable.
func localEmbedding(text string, dim int) []float32 {
	v := make([]float32, 0, dim)
	payload := []byte(text)
	counter := make([]byte, 4)
	for round := 0; len(v) < dim; round++ {
		binary.BigEndian.PutUint32(counter, uint32(round))
		sum := md5.Sum(append(payload, counter...))
		for _, b := range sum {
			if len(v) == dim {
				break
			}
			v = append(v, float32(b)/255.0*2-1)
		}
	}
	normalize(v)
	return v
}

// normalize scales v to unit L2 length in place. Zero vectors are
// left untouched.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
