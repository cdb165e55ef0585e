package search

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// perSourceLimit caps how many hits each channel may contribute to
	// the fused candidate list, so one noisy channel cannot dominate.
	perSourceLimit = 3

	// exactNameBoost is the score a table is lifted to when the query
	// text names it almost literally.
	exactNameBoost = 0.95
)

// Fusion merges per-channel hit lists into one prioritized candidate
// set plus an unfiltered table ranking. Channels score on scales that
// are not comparable (vector cosine vs. token overlap), so duplicates
// are resolved by fixed channel priority, never by score.
type Fusion struct {
	thresholds    Thresholds
	boostPrefixes []string
	logger        *zap.Logger
}

// NewFusion creates a Fusion. boostPrefixes lists short schema naming
// prefixes (for example "stg_", "dim_") that mark a query token as a
// literal table-name mention.
func NewFusion(thresholds Thresholds, boostPrefixes []string, logger *zap.Logger) *Fusion {
	prefixes := make([]string, 0, len(boostPrefixes))
	for _, p := range boostPrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Fusion{thresholds: thresholds, boostPrefixes: prefixes, logger: logger.Named("fusion")}
}

// Fuse combines the per-channel hit lists for one query.
//
// Per channel: drop hits below the channel threshold, sort by score
// descending, keep the top few. Then merge in fixed priority order
// data_value > keyword > semantic > lexical, deduplicating by
// (table, column) with the first occurrence winning: a higher-priority
// channel beats a lower-priority one even at a lower score. The table
// ranking is built separately from ALL raw hits, ignoring thresholds.
func (f *Fusion) Fuse(queryText string, sources map[Source][]SearchHit) FusedResult {
	raw := make([]SearchHit, 0, 16)
	for _, src := range mergePriority {
		raw = append(raw, sources[src]...)
	}

	type pairKey struct{ table, column string }
	seen := make(map[pairKey]bool)
	var candidates []SearchHit
	for _, src := range mergePriority {
		for _, h := range topHits(sources[src], f.thresholds.For(src)) {
			if h.Table == "" || h.Column == "" {
				continue
			}
			key := pairKey{h.Table, h.Column}
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, h)
		}
	}

	ranking := f.rankTables(queryText, raw)

	f.logger.Debug("hits fused",
		zap.Int("raw", len(raw)),
		zap.Int("candidates", len(candidates)),
		zap.Int("ranked_tables", len(ranking)))

	return FusedResult{Candidates: candidates, TableRanking: ranking, RawHits: raw}
}

// topHits filters one channel's hits by threshold and keeps the best
// few. The sort is stable so ties keep the channel's own order.
func topHits(hits []SearchHit, threshold float64) []SearchHit {
	kept := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > perSourceLimit {
		kept = kept[:perSourceLimit]
	}
	return kept
}

// rankTables keeps the maximum score seen per table over all raw hits,
// lifts tables the query names literally to exactNameBoost, and sorts
// by score descending with table name as the tiebreak.
func (f *Fusion) rankTables(queryText string, raw []SearchHit) []TableScore {
	boostTokens := f.boostTokens(queryText)

	best := make(map[string]float64)
	for _, h := range raw {
		if h.Table == "" {
			continue
		}
		score := h.Score
		if len(boostTokens) > 0 && tableMentioned(h.Table, boostTokens) && score < exactNameBoost {
			score = exactNameBoost
		}
		if score > best[h.Table] {
			best[h.Table] = score
		}
	}

	ranking := make([]TableScore, 0, len(best))
	for table, score := range best {
		ranking = append(ranking, TableScore{Table: table, Score: score})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].Table < ranking[j].Table
	})
	return ranking
}

// boostTokens extracts query tokens that look like literal table-name
// mentions: a token containing an underscore, or one starting with a
// configured schema prefix. Natural language rarely produces either, so
// their presence is a strong signal the user typed a real table name.
func (f *Fusion) boostTokens(queryText string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(queryText)) {
		tok = strings.Trim(tok, ".,;:!?()'\"`")
		if tok == "" {
			continue
		}
		if strings.Contains(tok, "_") {
			out = append(out, tok)
			continue
		}
		for _, p := range f.boostPrefixes {
			if len(tok) > len(p) && strings.HasPrefix(tok, p) {
				out = append(out, tok)
				break
			}
		}
	}
	return out
}

func tableMentioned(table string, tokens []string) bool {
	name := bareTableName(table)
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			return true
		}
	}
	return false
}
