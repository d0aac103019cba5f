package score

import (
	"strings"
	"unicode"
)

// stopwords are common English tokens excluded from relevance overlap.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "no": true, "not": true,
	"of": true, "on": true, "or": true, "so": true, "such": true,
	"that": true, "the": true, "their": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "to": true, "was": true,
	"we": true, "were": true, "which": true, "will": true, "with": true,
}

// tokenize lowercases text, splits on non-alphanumeric boundaries, and drops
// stopwords. Returns the distinct token set.
func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		tokens[f] = true
	}
	return tokens
}

// jaccard computes intersection-over-union of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	var intersection int
	for tok := range small {
		if large[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
