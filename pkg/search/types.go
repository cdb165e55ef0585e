// Package search provides the four candidate retrieval channels
// (semantic, lexical, keyword, data value) and the fusion step that
// merges their hits into one prioritized candidate set.
package search

import "strings"

// Source identifies which retrieval channel produced a hit. Scores are
// source-local and not comparable across channels.
type Source string

const (
	SourceSemantic  Source = "semantic"
	SourceLexical   Source = "lexical"
	SourceKeyword   Source = "keyword"
	SourceDataValue Source = "data_value"
)

// mergePriority is the fixed order in which channels contribute during
// fusion; an earlier channel wins duplicate (table, column) pairs.
var mergePriority = [...]Source{SourceDataValue, SourceKeyword, SourceSemantic, SourceLexical}

// SearchHit is one candidate (table, column) pair from a single
// channel. Matched carries the keyword or literal value that produced
// the hit; it is display/prompt context only and never drives
// correction logic. A hit with an empty Column is table-level: it
// contributes to the table ranking but never to the candidate list.
type SearchHit struct {
	Table   string  `json:"table"`
	Column  string  `json:"column,omitempty"`
	Score   float64 `json:"score"`
	Source  Source  `json:"source"`
	Matched string  `json:"matched,omitempty"`
}

// Thresholds carries the per-channel minimum score a hit must clear to
// enter the fused candidate list. The table ranking ignores them.
type Thresholds struct {
	Semantic  float64
	Lexical   float64
	Keyword   float64
	DataValue float64
}

// For returns the threshold for a channel; unknown channels get 0.
func (t Thresholds) For(s Source) float64 {
	switch s {
	case SourceSemantic:
		return t.Semantic
	case SourceLexical:
		return t.Lexical
	case SourceKeyword:
		return t.Keyword
	case SourceDataValue:
		return t.DataValue
	default:
		return 0
	}
}

// TableScore is one entry of the unfiltered table popularity ranking.
type TableScore struct {
	Table string  `json:"table"`
	Score float64 `json:"score"`
}

// FusedResult is the output of Fusion.Fuse.
//
// Candidates is the thresholded, deduplicated, priority-merged list
// that decides which tables enter the schema pool. TableRanking is the
// unfiltered popularity ranking used by clarification flows when
// nothing clears its threshold. RawHits is every hit from every
// channel: downstream relevance scoring aggregates over it, not over
// the pruned candidate list.
type FusedResult struct {
	Candidates   []SearchHit  `json:"candidates"`
	TableRanking []TableScore `json:"table_ranking"`
	RawHits      []SearchHit  `json:"-"`
}

// CandidateTables returns the distinct tables of the candidate list in
// candidate order.
func (r FusedResult) CandidateTables() []string {
	seen := make(map[string]bool, len(r.Candidates))
	var out []string
	for _, h := range r.Candidates {
		if h.Table == "" || seen[h.Table] {
			continue
		}
		seen[h.Table] = true
		out = append(out, h.Table)
	}
	return out
}

// bareTableName lowercases a table name and drops any schema qualifier.
func bareTableName(table string) string {
	name := strings.ToLower(table)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
