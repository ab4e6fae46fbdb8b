package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedder turns text into a similarity-searchable vector. The engine treats
// the representation as opaque; only cosine comparisons happen locally.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder embeds text through the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{
		client: &client,
		model:  openai.EmbeddingModelTextEmbedding3Small,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response had no data")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// HashEmbedder is a deterministic, offline embedder: token hashing into a
// fixed-size bag-of-words vector. Identical texts embed identically and
// texts sharing words land close together, which is all the dedup tests
// need.
type HashEmbedder struct {
	Dims int
}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dims: 64}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := e.Dims
	if dims <= 0 {
		dims = 64
	}

	vec := make([]float32, dims)
	word := make([]rune, 0, 16)

	flush := func() {
		if len(word) == 0 {
			return
		}
		h := fnv.New32a()
		h.Write([]byte(string(word)))
		vec[int(h.Sum32())%dims]++
		word = word[:0]
	}

	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '.' || r == ',' {
			flush()
			continue
		}
		word = append(word, r)
	}
	flush()

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
