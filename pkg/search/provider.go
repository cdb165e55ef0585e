package search

import "context"

// CandidateSourceProvider is one retrieval channel. Implementations
// must be safe for concurrent Search calls; the hybrid searcher fans
// out to all providers at once.
type CandidateSourceProvider interface {
	// Source reports which channel this provider feeds.
	Source() Source

	// Search returns up to topK hits for the query, best first.
	Search(ctx context.Context, queryText string, topK int) ([]SearchHit, error)
}

// Doc is one indexable schema unit: a (table, column) pair plus the
// text that describes it. Indexing providers consume these at startup.
type Doc struct {
	Table  string
	Column string
	Text   string
}
