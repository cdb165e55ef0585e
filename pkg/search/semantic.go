package search

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// SemanticProvider is the embedding-similarity channel: schema docs are
// embedded once at startup into an in-memory vector collection and
// queried by cosine similarity. The embedding function is injected so
// the provider stays agnostic of which model produces the vectors.
type SemanticProvider struct {
	collection *chromem.Collection
	logger     *zap.Logger
}

// NewSemanticProvider creates an empty vector collection using the
// given embedding function.
func NewSemanticProvider(embed chromem.EmbeddingFunc, logger *zap.Logger) (*SemanticProvider, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection("schema", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create semantic collection: %w", err)
	}
	return &SemanticProvider{collection: collection, logger: logger.Named("semantic")}, nil
}

// Index embeds and stores schema docs. Embedding happens here, so this
// is the expensive startup step.
func (p *SemanticProvider) Index(ctx context.Context, docs []Doc) error {
	out := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if d.Table == "" {
			continue
		}
		out = append(out, chromem.Document{
			ID:       d.Table + "|" + d.Column,
			Metadata: map[string]string{"table": d.Table, "column": d.Column},
			Content:  d.Text,
		})
	}
	if len(out) == 0 {
		return nil
	}
	if err := p.collection.AddDocuments(ctx, out, runtime.NumCPU()); err != nil {
		return fmt.Errorf("embed schema docs: %w", err)
	}
	p.logger.Info("semantic index built", zap.Int("docs", len(out)))
	return nil
}

func (p *SemanticProvider) Source() Source { return SourceSemantic }

// Search embeds the query and returns the nearest schema docs by
// cosine similarity.
func (p *SemanticProvider) Search(ctx context.Context, queryText string, topK int) ([]SearchHit, error) {
	n := topK
	if count := p.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := p.collection.Query(ctx, queryText, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			Table:  r.Metadata["table"],
			Column: r.Metadata["column"],
			Score:  float64(r.Similarity),
			Source: SourceSemantic,
		})
	}
	return hits, nil
}
