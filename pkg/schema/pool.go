package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/search"
)

// CatalogColumn is one live catalog column as reported by a datasource.
type CatalogColumn struct {
	Name     string
	DataType string
	Nullable bool
	Default  string
}

// TableColumnProvider resolves live column and key metadata for a
// table. Implementations sit on a real catalog; lookups may be cached.
type TableColumnProvider interface {
	ColumnsFor(ctx context.Context, schemaName, tableName string) ([]CatalogColumn, error)
	PrimaryKeyColumnsFor(ctx context.Context, schemaName, tableName string) ([]string, error)
}

// PoolOptions configures a PoolBuilder.
type PoolOptions struct {
	DefaultSchema   string
	MaxHops         int
	MaxExtraColumns int
}

// BuildResult is the assembled request-scoped schema view: the compact
// pool, the maximal join paths connecting its tables, literal value
// hints, and any non-fatal diagnostics collected along the way.
type BuildResult struct {
	Pool   *SchemaPool
	Paths  map[string]JoinPath
	Values ValueContext
	Issues []string
}

// PoolBuilder assembles a compact schema pool from fused search hits,
// discovered join paths, and live catalog metadata. The pool is the
// ground truth the auto-fixer corrects generated SQL against, so the
// invariant here is strict: key columns are never dropped, only
// unranked non-key columns are.
type PoolBuilder struct {
	finder   *PathFinder
	provider TableColumnProvider
	opts     PoolOptions
	logger   *zap.Logger
}

// NewPoolBuilder creates a PoolBuilder.
func NewPoolBuilder(finder *PathFinder, provider TableColumnProvider, opts PoolOptions, logger *zap.Logger) *PoolBuilder {
	if opts.MaxHops < 1 {
		opts.MaxHops = 1
	}
	if opts.MaxExtraColumns < 0 {
		opts.MaxExtraColumns = 0
	}
	return &PoolBuilder{finder: finder, provider: provider, opts: opts, logger: logger.Named("pool")}
}

// Build assembles the pool for one request.
//
// Anchor tables are normalized, join paths between them discovered and
// reduced to maximal chains, and every table touched by an anchor or a
// path enters the pool. Per table, the column list is all primary keys,
// then all foreign keys, then the best-scored extras up to the cap.
// Relevance scores aggregate as MAX over all raw hits from every
// channel, never an average.
//
// Catalog failures for one table degrade to a diagnostic and an empty
// column list; only context cancellation aborts the build.
func (b *PoolBuilder) Build(ctx context.Context, fused search.FusedResult, anchorTables []string, g *Graph) (*BuildResult, error) {
	anchors := b.normalizeAnchors(anchorTables)

	paths := b.finder.FindPaths(g, anchors, b.opts.MaxHops)
	maximal := b.finder.FilterMaximal(paths)

	allTables := make([]string, 0, len(anchors))
	inPool := make(map[string]bool)
	for _, t := range anchors {
		if !inPool[t] {
			inPool[t] = true
			allTables = append(allTables, t)
		}
	}
	for _, t := range ExtractPathTables(maximal) {
		if !inPool[t] {
			inPool[t] = true
			allTables = append(allTables, t)
		}
	}

	scores := b.aggregateScores(fused.RawHits)

	result := &BuildResult{Pool: NewSchemaPool(), Paths: maximal, Values: make(ValueContext)}
	for _, table := range allTables {
		entry, issues := b.buildEntry(ctx, table, g, scores)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("schema pool build interrupted: %w", err)
		}
		result.Pool.Add(entry)
		result.Issues = append(result.Issues, issues...)
	}

	b.collectValues(result, fused.RawHits)

	b.logger.Debug("schema pool built",
		zap.Int("anchors", len(anchors)),
		zap.Int("tables", result.Pool.Len()),
		zap.Int("paths", len(maximal)),
		zap.Int("issues", len(result.Issues)))
	return result, nil
}

func (b *PoolBuilder) normalizeAnchors(anchorTables []string) []string {
	seen := make(map[string]bool, len(anchorTables))
	out := make([]string, 0, len(anchorTables))
	for _, t := range anchorTables {
		n := NormalizeTableName(t, b.opts.DefaultSchema)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// aggregateScores keeps the maximum score per (table, column) over all
// raw hits. Pruned candidates still contribute: relevance ranking sees
// everything the channels saw.
func (b *PoolBuilder) aggregateScores(raw []search.SearchHit) map[string]float64 {
	scores := make(map[string]float64, len(raw))
	for _, h := range raw {
		if h.Table == "" || h.Column == "" {
			continue
		}
		key := scoreKey(NormalizeTableName(h.Table, b.opts.DefaultSchema), h.Column)
		if h.Score > scores[key] {
			scores[key] = h.Score
		}
	}
	return scores
}

func (b *PoolBuilder) buildEntry(ctx context.Context, table string, g *Graph, scores map[string]float64) (*TableEntry, []string) {
	entry := &TableEntry{Name: table}
	var issues []string

	schemaName, tableName := splitQualified(table)
	cols, err := b.provider.ColumnsFor(ctx, schemaName, tableName)
	if err != nil {
		issues = append(issues, fmt.Sprintf("no columns resolvable for %s: %v", table, err))
		return entry, issues
	}
	if len(cols) == 0 {
		issues = append(issues, fmt.Sprintf("no columns resolvable for %s: %v", table, apperrors.ErrEmptyCatalogResult))
		return entry, issues
	}

	pkNames, err := b.provider.PrimaryKeyColumnsFor(ctx, schemaName, tableName)
	if err != nil {
		b.logger.Warn("primary key lookup failed", zap.String("table", table), zap.Error(err))
		pkNames = nil
	}

	assumed := false
	if len(pkNames) == 0 {
		// No declared constraint: treat a column literally named "id"
		// as the key, but surface the assumption instead of passing it
		// off as a real constraint.
		for _, c := range cols {
			if strings.EqualFold(c.Name, "id") {
				pkNames = []string{c.Name}
				assumed = true
				issues = append(issues, fmt.Sprintf("assumed primary key %s.%s: no declared constraint", table, c.Name))
				break
			}
		}
	}
	isPK := make(map[string]bool, len(pkNames))
	for _, n := range pkNames {
		isPK[strings.ToLower(n)] = true
	}

	fkRefs := make(map[string]*FkRef)
	for _, e := range g.OutEdges(table) {
		lower := strings.ToLower(e.FromColumn)
		if _, ok := fkRefs[lower]; ok {
			continue
		}
		fkRefs[lower] = &FkRef{Table: e.ToTable, Column: e.ToColumn}
	}

	var pk, fk, other []ColumnMeta
	for _, c := range cols {
		lower := strings.ToLower(c.Name)
		meta := ColumnMeta{
			Name:           c.Name,
			DataType:       c.DataType,
			RelevanceScore: scores[scoreKey(table, c.Name)],
		}
		if ref, ok := fkRefs[lower]; ok {
			meta.IsForeignKey = true
			meta.FKReference = ref
			delete(fkRefs, lower)
		}
		switch {
		case isPK[lower]:
			meta.IsPrimaryKey = true
			meta.AssumedPrimaryKey = assumed
			pk = append(pk, meta)
		case meta.IsForeignKey:
			fk = append(fk, meta)
		default:
			other = append(other, meta)
		}
	}

	// Graph edges naming a column the live catalog no longer has point
	// at a stale snapshot; worth surfacing.
	if len(fkRefs) > 0 {
		stale := make([]string, 0, len(fkRefs))
		for col := range fkRefs {
			stale = append(stale, col)
		}
		sort.Strings(stale)
		issues = append(issues, fmt.Sprintf("graph references columns missing from %s: %s", table, strings.Join(stale, ", ")))
	}

	sort.SliceStable(other, func(i, j int) bool {
		if other[i].RelevanceScore != other[j].RelevanceScore {
			return other[i].RelevanceScore > other[j].RelevanceScore
		}
		return other[i].Name < other[j].Name
	})
	if len(other) > b.opts.MaxExtraColumns {
		other = other[:b.opts.MaxExtraColumns]
	}

	entry.Columns = make([]ColumnMeta, 0, len(pk)+len(fk)+len(other))
	entry.Columns = append(entry.Columns, pk...)
	entry.Columns = append(entry.Columns, fk...)
	entry.Columns = append(entry.Columns, other...)
	return entry, issues
}

// collectValues gathers literal value hints from data-value hits,
// first seen wins, restricted to columns the pool actually exposes so
// the prompt never hints at schema it does not show.
func (b *PoolBuilder) collectValues(result *BuildResult, raw []search.SearchHit) {
	for _, h := range raw {
		if h.Source != search.SourceDataValue || h.Matched == "" || h.Column == "" {
			continue
		}
		table := NormalizeTableName(h.Table, b.opts.DefaultSchema)
		entry := result.Pool.Get(table)
		if entry == nil || entry.Column(h.Column) == nil {
			continue
		}
		result.Values.Add(table+"."+h.Column, h.Matched)
	}
}

func scoreKey(table, column string) string {
	return table + "\x00" + strings.ToLower(column)
}

func splitQualified(table string) (schemaName, tableName string) {
	if s, t, ok := strings.Cut(table, "."); ok {
		return s, t
	}
	return "", table
}
