package search

import (
	"context"
	"sort"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"
)

// DataValueOptions bounds the in-memory value index.
type DataValueOptions struct {
	MaxColumns     int // columns indexed at most
	ValuesPerCol   int // sample values kept per column
	MaxValueLength int // longer values are not indexed
}

func (o DataValueOptions) withDefaults() DataValueOptions {
	if o.MaxColumns <= 0 {
		o.MaxColumns = 200
	}
	if o.ValuesPerCol <= 0 {
		o.ValuesPerCol = 50
	}
	if o.MaxValueLength <= 0 {
		o.MaxValueLength = 64
	}
	return o
}

type valueEntry struct {
	table   string
	column  string
	value   string
	lowered string
}

// DataValueProvider is the literal-value channel: a bounded in-memory
// index of sample values drawn from text columns. A query mentioning
// "shipped" hits orders.status if "shipped" is among its stored values.
// Values that look like SQL injection are never indexed; they are
// user-controlled strings destined for an LLM prompt.
type DataValueProvider struct {
	opts    DataValueOptions
	entries []valueEntry
	columns int
	logger  *zap.Logger
}

// NewDataValueProvider creates an empty value index.
func NewDataValueProvider(opts DataValueOptions, logger *zap.Logger) *DataValueProvider {
	return &DataValueProvider{opts: opts.withDefaults(), logger: logger.Named("datavalue")}
}

// Add indexes sample values for one column. It reports false once the
// column budget is exhausted so callers can stop fetching samples.
func (p *DataValueProvider) Add(table, column string, values []string) bool {
	if p.columns >= p.opts.MaxColumns {
		return false
	}
	p.columns++

	kept := 0
	for _, v := range values {
		if kept >= p.opts.ValuesPerCol {
			break
		}
		v = strings.TrimSpace(v)
		if v == "" || len(v) > p.opts.MaxValueLength {
			continue
		}
		if isSQLi, _ := libinjection.IsSQLi(v); isSQLi {
			p.logger.Warn("value skipped by injection screen",
				zap.String("table", table), zap.String("column", column))
			continue
		}
		p.entries = append(p.entries, valueEntry{
			table:   table,
			column:  column,
			value:   v,
			lowered: strings.Join(strings.Fields(strings.ToLower(v)), " "),
		})
		kept++
	}
	return true
}

// Size reports how many values are indexed.
func (p *DataValueProvider) Size() int { return len(p.entries) }

// PerColumnLimit reports how many values per column the index keeps.
// Callers fetching samples need not request more.
func (p *DataValueProvider) PerColumnLimit() int { return p.opts.ValuesPerCol }

func (p *DataValueProvider) Source() Source { return SourceDataValue }

// Search matches query tokens against indexed values. Tiers: an exact
// token match scores 1.0, a whole value contained in the query 0.9, a
// query token contained in a value 0.6. Best value per (table, column)
// wins; equal scores keep the lexically smaller value.
func (p *DataValueProvider) Search(_ context.Context, queryText string, topK int) ([]SearchHit, error) {
	normalized := normalizeQuery(queryText)
	if normalized == "" {
		return nil, nil
	}
	tokens := strings.Fields(normalized)

	type pairKey struct{ table, column string }
	best := make(map[pairKey]SearchHit)
	for _, e := range p.entries {
		score := scoreValue(e.lowered, normalized, tokens)
		if score == 0 {
			continue
		}
		hit := SearchHit{Table: e.table, Column: e.column, Score: score, Source: SourceDataValue, Matched: e.value}
		key := pairKey{e.table, e.column}
		cur, ok := best[key]
		if !ok || hit.Score > cur.Score || (hit.Score == cur.Score && hit.Matched < cur.Matched) {
			best[key] = hit
		}
	}

	hits := make([]SearchHit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Table != hits[j].Table {
			return hits[i].Table < hits[j].Table
		}
		return hits[i].Column < hits[j].Column
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func scoreValue(lowered, normalized string, tokens []string) float64 {
	for _, tok := range tokens {
		if tok == lowered {
			return 1.0
		}
	}
	if len(lowered) >= 3 && containsPhrase(normalized, lowered) {
		return 0.9
	}
	for _, tok := range tokens {
		if len(tok) >= 3 && strings.Contains(lowered, tok) {
			return 0.6
		}
	}
	return 0
}
