package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalClient is a deterministic, offline embedder: hashed bag-of-words over
// lowercased tokens, L2-normalized. Quality is far below a real model, but
// identical text always yields identical vectors, similar vocabularies land
// near each other, and it costs nothing — which is what the fallback path
// and the test suite need.
type LocalClient struct{}

// NewLocalClient creates the offline hashed-token embedder.
func NewLocalClient() *LocalClient {
	return &LocalClient{}
}

// Embed generates embeddings for multiple texts.
func (c *LocalClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashEmbed(t)
	}
	return out, nil
}

// EmbedOne generates an embedding for a single text.
func (c *LocalClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashEmbed(text), nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, Dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// Bucket by hash; a second hash bit picks the sign so buckets
		// cancel rather than only accumulate.
		bucket := int(sum % Dimensions)
		sign := float32(1)
		if (sum>>16)&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
