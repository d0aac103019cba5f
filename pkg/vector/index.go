// Package vector provides the in-memory similarity index over entry
// embeddings: search, deduplication, clustering, and hybrid scoring.
package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/engramdb/engram/pkg/embeddings"
)

// SearchResult is one similarity hit.
type SearchResult struct {
	ID    int64
	Score float64 // cosine similarity, higher is more similar
}

// Index is an in-memory vector index keyed by entry id. It holds both the
// full-precision vector and its quantized on-disk form; search runs against
// full precision when available and tolerates dequantized approximations
// otherwise. The index covers the working set of entries with embeddings,
// not the whole store, so the O(n) scan per query stays bounded.
type Index struct {
	mu      sync.RWMutex
	vectors map[int64][]float32
	quants  map[int64][]byte
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		vectors: make(map[int64][]float32),
		quants:  make(map[int64][]byte),
	}
}

// Add adds or replaces the vectors for an id. Either form may be nil; a
// missing full-precision vector is reconstructed from the quantized one.
func (ix *Index) Add(id int64, full []float32, quantized []byte) error {
	if full == nil && quantized != nil {
		back, err := embeddings.Dequantize(quantized)
		if err != nil {
			return err
		}
		full = back
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if full != nil {
		ix.vectors[id] = append([]float32(nil), full...)
	}
	if quantized != nil {
		ix.quants[id] = append([]byte(nil), quantized...)
	}
	return nil
}

// Remove drops an id from the index.
func (ix *Index) Remove(id int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
	delete(ix.quants, id)
}

// Len reports the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Has reports whether an id is indexed.
func (ix *Index) Has(id int64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.vectors[id]
	return ok
}

// Quantized returns the stored quantized form for an id, nil if absent.
func (ix *Index) Quantized(id int64) []byte {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	q, ok := ix.quants[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), q...)
}

// Search scans every indexed vector, drops scores below minSimilarity,
// and returns up to limit results sorted by similarity descending.
func (ix *Index) Search(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 || len(query) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(ix.vectors))
	i := 0
	for id, vec := range ix.vectors {
		// Cooperative cancellation checkpoint on long scans.
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i++

		score := CosineSimilarity(query, vec)
		if score < minSimilarity {
			continue
		}
		results = append(results, SearchResult{ID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1; 0 for mismatched lengths or zero norms.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
