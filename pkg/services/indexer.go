package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/adapters/datasource"
	"github.com/ekaya-inc/sqlmend/pkg/schema"
	"github.com/ekaya-inc/sqlmend/pkg/search"
)

// IndexTargets names the search channels the indexer feeds. Any target
// may be nil; that channel is skipped.
type IndexTargets struct {
	Semantic *search.SemanticProvider
	Lexical  *search.LexicalProvider
	Values   *search.DataValueProvider
}

// SchemaIndexer walks the live catalog once at startup and builds the
// in-memory search indexes: one doc per table and per column for the
// semantic and lexical channels, sampled distinct values from short
// text columns for the literal-value channel.
type SchemaIndexer struct {
	disc    datasource.SchemaDiscoverer
	targets IndexTargets
	logger  *zap.Logger
}

// NewSchemaIndexer creates a SchemaIndexer.
func NewSchemaIndexer(disc datasource.SchemaDiscoverer, targets IndexTargets, logger *zap.Logger) *SchemaIndexer {
	return &SchemaIndexer{disc: disc, targets: targets, logger: logger.Named("indexer")}
}

// Build discovers the catalog and fills every configured target.
// Per-table discovery failures are logged and skipped; an unreachable
// catalog is an error.
func (ix *SchemaIndexer) Build(ctx context.Context) error {
	tables, err := ix.disc.DiscoverTables(ctx)
	if err != nil {
		return fmt.Errorf("discover tables: %w", err)
	}

	var docs []search.Doc
	valueColumns := 0
	for _, t := range tables {
		qualified := t.SchemaName + "." + t.TableName
		cols, err := ix.disc.DiscoverColumns(ctx, t.SchemaName, t.TableName)
		if err != nil {
			ix.logger.Warn("column discovery failed, table skipped",
				zap.String("table", qualified), zap.Error(err))
			continue
		}

		docs = append(docs, search.Doc{
			Table: qualified,
			Text:  fmt.Sprintf("%s table", qualified),
		})
		for _, c := range cols {
			docs = append(docs, search.Doc{
				Table:  qualified,
				Column: c.ColumnName,
				Text:   fmt.Sprintf("%s table %s column type %s", qualified, c.ColumnName, c.DataType),
			})
		}

		valueColumns += ix.sampleValues(ctx, qualified, t, cols)
	}

	if ix.targets.Lexical != nil {
		if err := ix.targets.Lexical.Index(docs); err != nil {
			return fmt.Errorf("build lexical index: %w", err)
		}
	}
	if ix.targets.Semantic != nil {
		if err := ix.targets.Semantic.Index(ctx, docs); err != nil {
			return fmt.Errorf("build semantic index: %w", err)
		}
	}

	ix.logger.Info("schema indexes built",
		zap.Int("tables", len(tables)),
		zap.Int("docs", len(docs)),
		zap.Int("value_columns", valueColumns))
	return nil
}

// sampleValues pulls distinct values from text columns into the value
// index and reports how many columns it indexed. Sampling stops for
// good once the index reports its column budget exhausted.
func (ix *SchemaIndexer) sampleValues(ctx context.Context, qualified string, t datasource.TableMetadata, cols []datasource.ColumnMetadata) int {
	if ix.targets.Values == nil {
		return 0
	}

	indexed := 0
	limit := ix.targets.Values.PerColumnLimit()
	for _, c := range cols {
		if !schema.IsCharType(c.DataType) {
			continue
		}
		values, err := ix.disc.GetDistinctValues(ctx, t.SchemaName, t.TableName, c.ColumnName, limit)
		if err != nil {
			ix.logger.Debug("value sampling failed",
				zap.String("table", qualified),
				zap.String("column", c.ColumnName),
				zap.Error(err))
			continue
		}
		if len(values) == 0 {
			continue
		}
		if !ix.targets.Values.Add(qualified, c.ColumnName, values) {
			return indexed
		}
		indexed++
	}
	return indexed
}
