package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"
)

// LexicalProvider is the string-similarity channel: an in-memory
// full-text index over table and column names plus their descriptive
// text. It catches near-literal mentions that embeddings blur, with a
// little fuzziness for typos.
type LexicalProvider struct {
	index  bleve.Index
	logger *zap.Logger
}

// NewLexicalProvider creates an empty in-memory index.
func NewLexicalProvider(logger *zap.Logger) (*LexicalProvider, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}
	return &LexicalProvider{index: idx, logger: logger.Named("lexical")}, nil
}

// Index adds schema docs to the index. Underscores are split so
// "customer_id" is findable as "customer id".
func (p *LexicalProvider) Index(docs []Doc) error {
	batch := p.index.NewBatch()
	for _, d := range docs {
		if d.Table == "" || d.Column == "" {
			continue
		}
		text := strings.ReplaceAll(strings.ToLower(d.Text), "_", " ")
		if err := batch.Index(d.Table+"|"+d.Column, map[string]interface{}{"text": text}); err != nil {
			return fmt.Errorf("index %s.%s: %w", d.Table, d.Column, err)
		}
	}
	if err := p.index.Batch(batch); err != nil {
		return fmt.Errorf("apply lexical batch: %w", err)
	}
	return nil
}

func (p *LexicalProvider) Source() Source { return SourceLexical }

// Search runs a fuzzy match query and normalizes scores to [0, 1] by
// the result set's best score, since raw full-text scores are unbounded.
func (p *LexicalProvider) Search(ctx context.Context, queryText string, topK int) ([]SearchHit, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(queryText), "_", " "))
	if cleaned == "" {
		return nil, nil
	}

	q := bleve.NewMatchQuery(cleaned)
	q.SetField("text")
	q.SetFuzziness(1)
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)

	res, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		table, column, ok := strings.Cut(h.ID, "|")
		if !ok || table == "" || column == "" {
			continue
		}
		score := h.Score
		if res.MaxScore > 0 {
			score = h.Score / res.MaxScore
		}
		hits = append(hits, SearchHit{Table: table, Column: column, Score: score, Source: SourceLexical})
	}
	return hits, nil
}

// Close releases the index.
func (p *LexicalProvider) Close() error {
	return p.index.Close()
}
