// Package score ranks entries by blending keyword relevance, recency decay,
// and per-type priority into a single deterministic score.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/engramdb/engram/pkg/entry"
)

// Relevance shortcut scores.
const (
	exactMatchScore = 1.0
	substringScore  = 0.8
)

// fallbackRecency is used when an entry timestamp cannot be parsed: low but
// finite so broken rows rank poorly without poisoning sorts with NaN.
const fallbackRecency = 0.1

// priorityMultipliers reflects how durable each entry type's information
// typically is: briefs and patterns age well, progress notes do not.
var priorityMultipliers = map[entry.FileType]float64{
	entry.TypeBrief:           1.2,
	entry.TypePattern:         1.1,
	entry.TypeContext:         1.0,
	entry.TypeDecision:        0.95,
	entry.TypeProgress:        0.9,
	entry.TypePhaseResearch:   0.85,
	entry.TypePhasePlanning:   0.85,
	entry.TypePhaseExecution:  0.85,
	entry.TypePhaseCheckpoint: 0.85,
}

// Score breaks a ranking down into its components. Final is the product of
// the other three.
type Score struct {
	Relevance float64
	Recency   float64
	Priority  float64
	Final     float64
	Reason    string
}

// Options tune the scorer. Zero values take defaults.
type Options struct {
	// GraceDays is how long an entry keeps full recency (default 7).
	GraceDays int
	// HalfLifeDays controls decay beyond the grace window (default 30).
	HalfLifeDays int
	// Now overrides the clock for tests.
	Now time.Time
}

func (o *Options) applyDefaults() {
	if o.GraceDays <= 0 {
		o.GraceDays = 7
	}
	if o.HalfLifeDays <= 0 {
		o.HalfLifeDays = 30
	}
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
}

// Scored pairs an entry with its score, for ranking.
type Scored struct {
	Entry *entry.Entry
	Score Score
}

// ScoreEntry scores one entry against a query. Identical inputs always
// produce identical scores.
func ScoreEntry(e *entry.Entry, query string, opts Options) Score {
	opts.applyDefaults()

	relevance, reason := relevanceScore(e.Content, query)
	recency := recencyScore(e.Timestamp, opts)
	priority := PriorityMultiplier(e.FileType)

	return Score{
		Relevance: relevance,
		Recency:   recency,
		Priority:  priority,
		Final:     relevance * recency * priority,
		Reason:    reason,
	}
}

// PriorityMultiplier returns the fixed per-type multiplier, 1.0 for unknown
// types.
func PriorityMultiplier(t entry.FileType) float64 {
	if m, ok := priorityMultipliers[t]; ok {
		return m
	}
	return 1.0
}

// relevanceScore compares query and content lexically: exact equality wins
// outright, substring containment takes a high fixed score, and everything
// else falls back to Jaccard overlap of the stopword-filtered token sets.
func relevanceScore(content, query string) (float64, string) {
	c := strings.ToLower(strings.TrimSpace(content))
	q := strings.ToLower(strings.TrimSpace(query))

	if q == "" {
		return 0, "empty query"
	}
	if c == q {
		return exactMatchScore, "exact match"
	}
	if strings.Contains(c, q) {
		return substringScore, "substring match"
	}

	j := jaccard(tokenize(query), tokenize(content))
	if j == 0 {
		return 0, "no keyword overlap"
	}
	return j, fmt.Sprintf("keyword overlap %.2f", j)
}

// recencyScore gives full score inside the grace window, then decays with
// the half-life formula 0.5^(days/halfLife). Unparsable timestamps degrade
// to a low finite score rather than NaN.
func recencyScore(timestamp string, opts Options) float64 {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fallbackRecency
	}

	age := opts.Now.Sub(ts)
	if age < 0 {
		return 1.0
	}

	ageDays := age.Hours() / 24.0
	grace := float64(opts.GraceDays)
	if ageDays <= grace {
		return 1.0
	}

	exponent := (ageDays - grace) / float64(opts.HalfLifeDays)
	return math.Pow(0.5, exponent)
}

// RankEntries scores every entry against the query and returns them sorted
// by final score descending. Ties break on newer timestamp, then lower id,
// so ordering stays stable.
func RankEntries(entries []*entry.Entry, query string, opts Options) []Scored {
	scored := make([]Scored, len(entries))
	for i, e := range entries {
		scored[i] = Scored{Entry: e, Score: ScoreEntry(e, query, opts)}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score.Final != scored[j].Score.Final {
			return scored[i].Score.Final > scored[j].Score.Final
		}
		if scored[i].Entry.Timestamp != scored[j].Entry.Timestamp {
			return scored[i].Entry.Timestamp > scored[j].Entry.Timestamp
		}
		return scored[i].Entry.ID < scored[j].Entry.ID
	})
	return scored
}

// FilterByThreshold drops scored entries below the cutoff.
func FilterByThreshold(scored []Scored, threshold float64) []Scored {
	out := make([]Scored, 0, len(scored))
	for _, s := range scored {
		if s.Score.Final >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// TopEntries returns the n highest-scored entries (input must already be
// ranked).
func TopEntries(scored []Scored, n int) []Scored {
	if n <= 0 || n >= len(scored) {
		return scored
	}
	return scored[:n]
}
