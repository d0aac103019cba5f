// Package embeddings converts entry text into fixed-length vectors,
// quantizes them for storage, and attaches them to entries asynchronously.
package embeddings

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Dimensions is the fixed embedding width. Every client must return vectors
// of exactly this length.
const Dimensions = 384

// Client defines the interface for generating text embeddings.
type Client interface {
	// Embed generates embeddings for multiple texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedOne generates an embedding for a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ZeroVector returns the all-zero embedding used for blank content.
func ZeroVector() []float32 {
	return make([]float32, Dimensions)
}

// IsBlank reports whether text is empty or whitespace-only. Blank text gets
// the zero vector without invoking any model, so blank content never pays a
// model cold-start.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// EmbedText embeds one text through c, short-circuiting blank input to the
// zero vector.
func EmbedText(ctx context.Context, c Client, text string) ([]float32, error) {
	if IsBlank(text) {
		return ZeroVector(), nil
	}
	return c.EmbedOne(ctx, text)
}

// EmbedBatch embeds texts in chunks with bounded concurrency. Blank texts
// get zero vectors without reaching the client. Between chunks the context
// is checked so long batches cancel cooperatively.
func EmbedBatch(ctx context.Context, c Client, texts []string, chunkSize, concurrency int) ([][]float32, error) {
	if chunkSize <= 0 {
		chunkSize = 32
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	out := make([][]float32, len(texts))

	// Partition into (index, text) pairs that actually need the model.
	var pendingIdx []int
	var pendingTexts []string
	for i, t := range texts {
		if IsBlank(t) {
			out[i] = ZeroVector()
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pendingTexts = append(pendingTexts, t)
	}
	if len(pendingTexts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(pendingTexts); start += chunkSize {
		if err := gctx.Err(); err != nil {
			break
		}
		end := start + chunkSize
		if end > len(pendingTexts) {
			end = len(pendingTexts)
		}
		chunkStart, chunkEnd := start, end
		g.Go(func() error {
			vecs, err := c.Embed(gctx, pendingTexts[chunkStart:chunkEnd])
			if err != nil {
				return err
			}
			for i, v := range vecs {
				out[pendingIdx[chunkStart+i]] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
