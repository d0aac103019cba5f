package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedText_BlankReturnsZeroVector(t *testing.T) {
	ctx := context.Background()
	c := NewLocalClient()

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		vec, err := EmbedText(ctx, c, text)
		require.NoError(t, err)
		require.Len(t, vec, Dimensions)
		for _, v := range vec {
			assert.Zero(t, v, "blank text %q should embed to the zero vector", text)
		}
	}
}

func TestLocalClient_Deterministic(t *testing.T) {
	ctx := context.Background()
	c := NewLocalClient()

	a, err := c.EmbedOne(ctx, "the storage layer uses sqlite")
	require.NoError(t, err)
	b, err := c.EmbedOne(ctx, "the storage layer uses sqlite")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, Dimensions)
}

func TestLocalClient_SimilarTextsScoreHigher(t *testing.T) {
	ctx := context.Background()
	c := NewLocalClient()

	base, _ := c.EmbedOne(ctx, "sqlite schema migration with backup")
	near, _ := c.EmbedOne(ctx, "schema migration backup for sqlite")
	far, _ := c.EmbedOne(ctx, "k-means clustering of centroids")

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestLocalClient_Normalized(t *testing.T) {
	ctx := context.Background()
	c := NewLocalClient()

	vec, err := c.EmbedOne(ctx, "normalization check")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestEmbedBatch(t *testing.T) {
	ctx := context.Background()
	c := NewLocalClient()

	texts := []string{"first entry", "", "third entry", "   ", "fifth entry"}
	vecs, err := EmbedBatch(ctx, c, texts, 2, 2)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	// Blank inputs come back as zero vectors, the rest match EmbedOne.
	for i, text := range texts {
		require.Len(t, vecs[i], Dimensions)
		if IsBlank(text) {
			for _, v := range vecs[i] {
				assert.Zero(t, v)
			}
			continue
		}
		want, _ := c.EmbedOne(ctx, text)
		assert.Equal(t, want, vecs[i], "index %d out of order", i)
	}
}

func TestEmbedBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	texts := make([]string, 100)
	for i := range texts {
		texts[i] = "text"
	}
	_, err := EmbedBatch(ctx, NewLocalClient(), texts, 10, 2)
	assert.Error(t, err)
}
