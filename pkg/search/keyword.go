package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"
)

// KeywordGlossary maps a table name to its curated keyword entry. The
// glossary is maintained by hand per deployment: it encodes domain
// vocabulary ("invoice", "meter reading") that embeddings and string
// similarity both miss.
type KeywordGlossary map[string]TableKeywords

// TableKeywords is one glossary entry.
type TableKeywords struct {
	TableKeywords  []string            `json:"table_keywords"`
	ColumnKeywords map[string][]string `json:"column_keywords"`
}

// LoadKeywordGlossary reads a glossary JSON file. A missing file is not
// an error: the keyword channel simply stays empty.
func LoadKeywordGlossary(path string) (KeywordGlossary, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return KeywordGlossary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyword glossary %s: %w", path, err)
	}
	var g KeywordGlossary
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse keyword glossary %s: %w", path, err)
	}
	return g, nil
}

// KeywordProvider matches query tokens against the curated glossary.
// Scoring is literal, not vector-based: a full keyword phrase contained
// in the query scores 1.0, partial token overlap scores proportionally
// below 0.9. Singular/plural variants of query tokens count as matches.
type KeywordProvider struct {
	glossary KeywordGlossary
	tables   []string
	logger   *zap.Logger
}

// NewKeywordProvider creates a KeywordProvider over a glossary.
func NewKeywordProvider(glossary KeywordGlossary, logger *zap.Logger) *KeywordProvider {
	tables := make([]string, 0, len(glossary))
	for t := range glossary {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return &KeywordProvider{glossary: glossary, tables: tables, logger: logger.Named("keyword")}
}

func (p *KeywordProvider) Source() Source { return SourceKeyword }

// Search scores every glossary keyword against the query and returns
// the best hit per (table, column), best first.
func (p *KeywordProvider) Search(_ context.Context, queryText string, topK int) ([]SearchHit, error) {
	normalized := normalizeQuery(queryText)
	tokens := expandTokens(normalized)

	var hits []SearchHit
	for _, table := range p.tables {
		entry := p.glossary[table]

		if score, kw := bestKeywordScore(entry.TableKeywords, normalized, tokens); score > 0 {
			hits = append(hits, SearchHit{Table: table, Score: score, Source: SourceKeyword, Matched: kw})
		}

		columns := make([]string, 0, len(entry.ColumnKeywords))
		for c := range entry.ColumnKeywords {
			columns = append(columns, c)
		}
		sort.Strings(columns)
		for _, col := range columns {
			if score, kw := bestKeywordScore(entry.ColumnKeywords[col], normalized, tokens); score > 0 {
				hits = append(hits, SearchHit{Table: table, Column: col, Score: score, Source: SourceKeyword, Matched: kw})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// normalizeQuery lowercases the query and rejoins it from trimmed
// tokens so phrase containment checks see clean word boundaries.
func normalizeQuery(queryText string) string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(queryText)) {
		if tok = strings.Trim(tok, ".,;:!?()'\"`"); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return strings.Join(tokens, " ")
}

// expandTokens builds the query token set including singular and plural
// variants, so "customers" in the query matches a "customer" keyword.
func expandTokens(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		set[tok] = true
		set[inflection.Singular(tok)] = true
		set[inflection.Plural(tok)] = true
	}
	return set
}

// bestKeywordScore returns the strongest keyword match from a list,
// along with the keyword that produced it. Keywords are tried in
// glossary order, so equal scores keep the earlier keyword.
func bestKeywordScore(keywords []string, normalized string, tokens map[string]bool) (float64, string) {
	var best float64
	var bestKw string
	for _, kw := range keywords {
		kwNorm := normalizeQuery(kw)
		if kwNorm == "" {
			continue
		}

		var score float64
		if containsPhrase(normalized, kwNorm) {
			score = 1.0
		} else {
			kwTokens := strings.Fields(kwNorm)
			matched := 0
			for _, t := range kwTokens {
				if tokens[t] || tokens[inflection.Singular(t)] {
					matched++
				}
			}
			if matched > 0 {
				score = 0.9 * float64(matched) / float64(len(kwTokens))
			}
		}
		if score > best {
			best, bestKw = score, kw
		}
	}
	return best, bestKw
}

func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}
