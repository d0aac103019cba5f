package vector

import (
	"context"
	"math"
	"sort"
)

// Cluster is one k-means cluster: a centroid and the member entry ids.
type Cluster struct {
	Centroid []float32
	Members  []int64
}

// Cluster partitions the indexed vectors into k clusters using k-means with
// cosine similarity as the assignment criterion and mean-then-renormalize as
// the centroid update. When k >= n every vector becomes its own singleton
// cluster instead of erroring.
func (ix *Index) Cluster(ctx context.Context, k, maxIterations int) ([]Cluster, error) {
	if maxIterations <= 0 {
		maxIterations = 20
	}

	ix.mu.RLock()
	ids := make([]int64, 0, len(ix.vectors))
	for id := range ix.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		vecs[i] = ix.vectors[id]
	}
	ix.mu.RUnlock()

	n := len(ids)
	if n == 0 || k <= 0 {
		return []Cluster{}, nil
	}

	// Degenerate case: singleton clusters.
	if k >= n {
		clusters := make([]Cluster, n)
		for i, id := range ids {
			clusters[i] = Cluster{
				Centroid: append([]float32(nil), vecs[i]...),
				Members:  []int64{id},
			}
		}
		return clusters, nil
	}

	// Deterministic seeding: evenly spaced vectors in id order.
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), vecs[i*n/k]...)
	}

	assignments := make([]int, n)
	for iter := 0; iter < maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Assignment: nearest centroid by cosine similarity.
		changed := false
		for i, vec := range vecs {
			best, bestScore := 0, math.Inf(-1)
			for c, centroid := range centroids {
				if score := CosineSimilarity(vec, centroid); score > bestScore {
					best, bestScore = c, score
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Update: component-wise mean, then renormalize to the unit
		// sphere so cosine assignment stays meaningful.
		dim := len(vecs[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, vec := range vecs {
			c := assignments[i]
			counts[c]++
			for d, v := range vec {
				sums[c][d] += float64(v)
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // empty cluster keeps its centroid
			}
			var norm float64
			mean := make([]float32, dim)
			for d := 0; d < dim; d++ {
				m := sums[c][d] / float64(counts[c])
				mean[d] = float32(m)
				norm += m * m
			}
			if norm > 0 {
				scale := float32(1 / math.Sqrt(norm))
				for d := range mean {
					mean[d] *= scale
				}
			}
			centroids[c] = mean
		}
	}

	clusters := make([]Cluster, k)
	for c := range clusters {
		clusters[c].Centroid = centroids[c]
	}
	for i, c := range assignments {
		clusters[c].Members = append(clusters[c].Members, ids[i])
	}
	return clusters, nil
}
