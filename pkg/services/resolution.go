package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/prompts"
	"github.com/ekaya-inc/sqlmend/pkg/schema"
	"github.com/ekaya-inc/sqlmend/pkg/search"
)

// Resolution is the resolved schema context for one question: the
// fused candidates, the assembled pool with its join paths and value
// hints, and the rendered prompt sections built from them.
//
// When no source cleared its threshold, Result is nil and Suggestions
// carries the top of the unfiltered table ranking for a clarification
// answer.
type Resolution struct {
	Fused         search.FusedResult
	Result        *schema.BuildResult
	SchemaContext string
	ValueHints    string
	Suggestions   []string
}

// ResolutionService turns a natural-language question into the schema
// context generation and correction run against.
type ResolutionService interface {
	// Resolve searches all channels, fuses the hits, and builds the
	// schema pool for the question. When nothing clears its threshold
	// it returns a Resolution carrying only Suggestions together with
	// apperrors.ErrNoCandidateTables.
	Resolve(ctx context.Context, question string) (*Resolution, error)
}

type resolutionService struct {
	searcher        *search.HybridSearcher
	fusion          *search.Fusion
	loader          *schema.Loader
	builder         *schema.PoolBuilder
	glossary        search.KeywordGlossary
	suggestionLimit int
	logger          *zap.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(
	searcher *search.HybridSearcher,
	fusion *search.Fusion,
	loader *schema.Loader,
	builder *schema.PoolBuilder,
	glossary search.KeywordGlossary,
	suggestionLimit int,
	logger *zap.Logger,
) ResolutionService {
	if suggestionLimit < 1 {
		suggestionLimit = 5
	}
	return &resolutionService{
		searcher:        searcher,
		fusion:          fusion,
		loader:          loader,
		builder:         builder,
		glossary:        glossary,
		suggestionLimit: suggestionLimit,
		logger:          logger.Named("resolution"),
	}
}

var _ ResolutionService = (*resolutionService)(nil)

func (s *resolutionService) Resolve(ctx context.Context, question string) (*Resolution, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}

	g, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fk graph: %w", err)
	}

	sources := s.searcher.SearchAll(ctx, question)
	fused := s.fusion.Fuse(question, sources)

	anchors := fused.CandidateTables()
	if len(anchors) == 0 {
		res := &Resolution{Fused: fused, Suggestions: s.suggestions(fused)}
		return res, fmt.Errorf("no search source cleared its threshold: %w", apperrors.ErrNoCandidateTables)
	}

	built, err := s.builder.Build(ctx, fused, anchors, g)
	if err != nil {
		return nil, fmt.Errorf("build schema pool: %w", err)
	}

	res := &Resolution{
		Fused:         fused,
		Result:        built,
		SchemaContext: prompts.BuildSchemaContext(built, s.glossary),
		ValueHints:    prompts.BuildValueHints(built.Values, question),
	}
	s.logger.Debug("question resolved",
		zap.Int("candidates", len(fused.Candidates)),
		zap.Int("anchors", len(anchors)),
		zap.Int("tables", built.Pool.Len()),
		zap.Int("paths", len(built.Paths)),
		zap.Int("issues", len(built.Issues)))
	return res, nil
}

// suggestions takes the top of the unfiltered table ranking, which is
// already ordered best first.
func (s *resolutionService) suggestions(fused search.FusedResult) []string {
	n := s.suggestionLimit
	if n > len(fused.TableRanking) {
		n = len(fused.TableRanking)
	}
	out := make([]string, 0, n)
	for _, ts := range fused.TableRanking[:n] {
		out = append(out, ts.Table)
	}
	return out
}
