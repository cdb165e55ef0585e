package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeProvider struct {
	source Source
	hits   []SearchHit
	err    error
	calls  int
	gotTop int
}

func (f *fakeProvider) Source() Source { return f.source }

func (f *fakeProvider) Search(_ context.Context, _ string, topK int) ([]SearchHit, error) {
	f.calls++
	f.gotTop = topK
	return f.hits, f.err
}

func TestHybridSearcher_CollectsAllChannels(t *testing.T) {
	semantic := &fakeProvider{source: SourceSemantic, hits: []SearchHit{{Table: "t", Column: "a", Score: 0.7, Source: SourceSemantic}}}
	keyword := &fakeProvider{source: SourceKeyword, hits: []SearchHit{{Table: "t", Column: "b", Score: 0.9, Source: SourceKeyword}}}

	s := NewHybridSearcher([]CandidateSourceProvider{semantic, keyword}, 15, zap.NewNop())
	out := s.SearchAll(context.Background(), "query")

	if len(out) != 2 {
		t.Fatalf("got %d channels, want 2", len(out))
	}
	if len(out[SourceSemantic]) != 1 || len(out[SourceKeyword]) != 1 {
		t.Errorf("hits lost: %v", out)
	}
	if semantic.calls != 1 || keyword.calls != 1 {
		t.Errorf("providers called %d/%d times, want once each", semantic.calls, keyword.calls)
	}
	if semantic.gotTop != 15 {
		t.Errorf("topK not forwarded: got %d", semantic.gotTop)
	}
}

func TestHybridSearcher_FailingChannelDegradesToEmpty(t *testing.T) {
	good := &fakeProvider{source: SourceLexical, hits: []SearchHit{{Table: "t", Column: "c", Score: 0.8, Source: SourceLexical}}}
	bad := &fakeProvider{source: SourceSemantic, err: errors.New("index offline")}

	s := NewHybridSearcher([]CandidateSourceProvider{good, bad}, 10, zap.NewNop())
	out := s.SearchAll(context.Background(), "query")

	if len(out[SourceSemantic]) != 0 {
		t.Errorf("failed channel returned hits: %v", out[SourceSemantic])
	}
	if len(out[SourceLexical]) != 1 {
		t.Errorf("healthy channel lost its hits: %v", out[SourceLexical])
	}
}
