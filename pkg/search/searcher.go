package search

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// HybridSearcher fans one query out to every registered provider
// concurrently and collects the per-channel hit lists. A failing
// provider degrades to an empty list with a warning; the other
// channels still contribute.
type HybridSearcher struct {
	providers []CandidateSourceProvider
	topK      int
	logger    *zap.Logger
}

// NewHybridSearcher creates a HybridSearcher. topK is the raw hit cap
// requested from each provider before fusion.
func NewHybridSearcher(providers []CandidateSourceProvider, topK int, logger *zap.Logger) *HybridSearcher {
	if topK < 1 {
		topK = 1
	}
	return &HybridSearcher{providers: providers, topK: topK, logger: logger.Named("hybrid")}
}

// SearchAll runs every provider against the query and returns hits
// keyed by channel. Channels without a provider are simply absent.
func (s *HybridSearcher) SearchAll(ctx context.Context, queryText string) map[Source][]SearchHit {
	results := make([][]SearchHit, len(s.providers))
	errs := make([]error, len(s.providers))

	var wg sync.WaitGroup
	for i, p := range s.providers {
		wg.Add(1)
		go func(i int, p CandidateSourceProvider) {
			defer wg.Done()
			results[i], errs[i] = p.Search(ctx, queryText, s.topK)
		}(i, p)
	}
	wg.Wait()

	out := make(map[Source][]SearchHit, len(s.providers))
	for i, p := range s.providers {
		src := p.Source()
		if errs[i] != nil {
			s.logger.Warn("search channel failed",
				zap.String("source", string(src)),
				zap.Error(errs[i]))
			out[src] = nil
			continue
		}
		out[src] = results[i]
	}
	return out
}
