package vector

// Default weights for blending semantic and lexical relevance.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// HybridScore blends a cosine similarity with a keyword score. The cosine
// value is normalized from [-1, 1] to [0, 1], the keyword score clamped to
// [0, 1], and the two combined as a weighted sum. Zero weights fall back to
// the 0.7/0.3 defaults.
func HybridScore(semantic, keyword, semanticWeight, keywordWeight float64) float64 {
	if semanticWeight <= 0 && keywordWeight <= 0 {
		semanticWeight = DefaultSemanticWeight
		keywordWeight = DefaultKeywordWeight
	}

	s := (semantic + 1) / 2
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}

	k := keyword
	if k < 0 {
		k = 0
	}
	if k > 1 {
		k = 1
	}

	return s*semanticWeight + k*keywordWeight
}
