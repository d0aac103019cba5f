package vector

import (
	"context"
	"sort"
)

// DefaultDedupeThreshold is the similarity above which two entries count as
// near-duplicates.
const DefaultDedupeThreshold = 0.95

// Deduplicate groups near-duplicate vectors in a single greedy pass: each
// unprocessed vector collects every other vector above the threshold into
// its group and marks them processed. Groups are disjoint; singletons are
// omitted. Group members are sorted by id, groups by their first member.
func (ix *Index) Deduplicate(ctx context.Context, threshold float64) ([][]int64, error) {
	if threshold <= 0 {
		threshold = DefaultDedupeThreshold
	}

	ix.mu.RLock()
	ids := make([]int64, 0, len(ix.vectors))
	for id := range ix.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	vecs := make(map[int64][]float32, len(ids))
	for _, id := range ids {
		vecs[id] = ix.vectors[id]
	}
	ix.mu.RUnlock()

	processed := make(map[int64]bool, len(ids))
	var groups [][]int64

	for _, id := range ids {
		if processed[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		processed[id] = true

		group := []int64{id}
		for _, other := range ids {
			if processed[other] {
				continue
			}
			if CosineSimilarity(vecs[id], vecs[other]) > threshold {
				processed[other] = true
				group = append(group, other)
			}
		}

		if len(group) > 1 {
			sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
			groups = append(groups, group)
		}
	}

	return groups, nil
}
