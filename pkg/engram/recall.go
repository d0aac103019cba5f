package engram

import (
	"context"
	"sort"
	"time"

	"github.com/engramdb/engram/pkg/embeddings"
	"github.com/engramdb/engram/pkg/entry"
	"github.com/engramdb/engram/pkg/score"
	"github.com/engramdb/engram/pkg/vector"
)

// RecallQuery describes one recall request.
type RecallQuery struct {
	Query string

	// FileType narrows results to one type. Empty means all types.
	FileType entry.FileType

	// Limit bounds the result count (default 10).
	Limit int

	// MinScore drops results below the threshold.
	MinScore float64

	// SemanticWeight and KeywordWeight blend the two signals. Both zero
	// takes the 0.7/0.3 default.
	SemanticWeight float64
	KeywordWeight  float64

	// SemanticOnly skips keyword candidates, searching only the vector
	// index.
	SemanticOnly bool
}

// RecallResult is one recalled entry with its blended score.
type RecallResult struct {
	Entry *entry.Entry
	// Combined is the hybrid blend of semantic and keyword signals.
	Combined float64
	// Semantic is the cosine similarity, 0 when the entry has no embedding
	// yet.
	Semantic float64
	// Keyword is the lexical relevance/recency/priority composite.
	Keyword float64
}

const defaultRecallLimit = 10

// Recall finds the entries most relevant to a query by blending vector
// similarity with lexical scoring. Entries whose embeddings are still
// pending participate through the keyword signal alone.
func (e *Engine) Recall(ctx context.Context, q RecallQuery) (results []RecallResult, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "recall", start, err) }()

	if q.Limit <= 0 {
		q.Limit = defaultRecallLimit
	}

	stage := time.Now()
	semantic, err := e.semanticScores(ctx, q.Query)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordStage(ctx, "recall", "semantic", time.Since(stage).Milliseconds())

	stage = time.Now()
	candidates, err := e.gatherCandidates(ctx, q, semantic)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordStage(ctx, "recall", "gather", time.Since(stage).Milliseconds())

	stage = time.Now()
	opts := e.scoreOptions()
	results = make([]RecallResult, 0, len(candidates))
	for _, en := range candidates {
		if q.FileType != "" && en.FileType != q.FileType {
			continue
		}
		keyword := score.ScoreEntry(en, q.Query, opts).Final
		sem := semantic[en.ID]
		combined := vector.HybridScore(sem, keyword, q.SemanticWeight, q.KeywordWeight)
		if combined < q.MinScore {
			continue
		}
		results = append(results, RecallResult{
			Entry:    en,
			Combined: combined,
			Semantic: sem,
			Keyword:  keyword,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	e.metrics.RecordStage(ctx, "recall", "rank", time.Since(stage).Milliseconds())
	return results, nil
}

// semanticScores embeds the query and scans the index, returning cosine
// similarity per entry id. An empty query or an embedding failure yields
// no semantic signal rather than failing the recall.
func (e *Engine) semanticScores(ctx context.Context, query string) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	if embeddings.IsBlank(query) || e.index.Len() == 0 {
		return scores, nil
	}

	qvec, err := embeddings.EmbedText(ctx, e.client, query)
	if err != nil {
		e.logger.Warn("query embedding failed, falling back to keyword recall", "error", err)
		return scores, nil
	}

	hits, err := e.index.Search(ctx, qvec, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		scores[h.ID] = h.Score
	}
	return scores, nil
}

// gatherCandidates unions keyword search hits, recent entries, and
// semantic hits into one deduplicated candidate set.
func (e *Engine) gatherCandidates(ctx context.Context, q RecallQuery, semantic map[int64]float64) ([]*entry.Entry, error) {
	seen := make(map[int64]bool)
	var out []*entry.Entry
	add := func(entries []*entry.Entry) {
		for _, en := range entries {
			if seen[en.ID] {
				continue
			}
			seen[en.ID] = true
			out = append(out, en)
		}
	}

	if !q.SemanticOnly && q.Query != "" {
		hits, err := e.store.FullTextSearch(ctx, q.Query, q.Limit*4)
		if err != nil {
			return nil, err
		}
		add(hits)
	}

	if !q.SemanticOnly {
		recent, err := e.store.GetRecent(ctx, q.FileType, q.Limit*2)
		if err != nil {
			return nil, err
		}
		add(recent)
	}

	for id := range semantic {
		if seen[id] {
			continue
		}
		en, err := e.store.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		if en != nil {
			seen[id] = true
			out = append(out, en)
		}
	}
	return out, nil
}

// FindDuplicates groups stored entries whose embeddings are nearly
// identical, for consolidation. Groups are disjoint; entries without
// duplicates are omitted.
func (e *Engine) FindDuplicates(ctx context.Context, threshold float64) ([][]int64, error) {
	if threshold <= 0 {
		threshold = vector.DefaultDedupeThreshold
	}
	return e.index.Deduplicate(ctx, threshold)
}
