package datasource

import (
	"context"

	"github.com/ekaya-inc/sqlmend/pkg/schema"
)

// CatalogProvider adapts a SchemaDiscoverer to the pool builder's
// TableColumnProvider. Wrap the discoverer in a CachedDiscoverer first:
// the pool builder asks for columns and keys of the same table in one
// build, and per-turn rebuilds repeat the same lookups.
type CatalogProvider struct {
	disc SchemaDiscoverer
}

// NewCatalogProvider creates a provider over a discoverer.
func NewCatalogProvider(disc SchemaDiscoverer) *CatalogProvider {
	return &CatalogProvider{disc: disc}
}

// ColumnsFor returns the live columns of one table.
func (p *CatalogProvider) ColumnsFor(ctx context.Context, schemaName, tableName string) ([]schema.CatalogColumn, error) {
	cols, err := p.disc.DiscoverColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	out := make([]schema.CatalogColumn, 0, len(cols))
	for _, c := range cols {
		col := schema.CatalogColumn{
			Name:     c.ColumnName,
			DataType: c.DataType,
			Nullable: c.IsNullable,
		}
		if c.DefaultValue != nil {
			col.Default = *c.DefaultValue
		}
		out = append(out, col)
	}
	return out, nil
}

// PrimaryKeyColumnsFor returns the primary-key column names of one table.
func (p *CatalogProvider) PrimaryKeyColumnsFor(ctx context.Context, schemaName, tableName string) ([]string, error) {
	cols, err := p.disc.DiscoverColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	var pks []string
	for _, c := range cols {
		if c.IsPrimaryKey {
			pks = append(pks, c.ColumnName)
		}
	}
	return pks, nil
}

var _ schema.TableColumnProvider = (*CatalogProvider)(nil)

// FkEdges returns an EdgeDiscoverer for the graph loader, backed by
// live foreign-key discovery. Tables are schema-qualified so edge
// endpoints line up with the pool's canonical table names.
func FkEdges(disc SchemaDiscoverer) schema.EdgeDiscoverer {
	return func(ctx context.Context) ([]schema.FkEdge, error) {
		fks, err := disc.DiscoverForeignKeys(ctx)
		if err != nil {
			return nil, err
		}

		edges := make([]schema.FkEdge, 0, len(fks))
		for _, fk := range fks {
			edges = append(edges, schema.FkEdge{
				FromTable:  qualifiedName(fk.SourceSchema, fk.SourceTable),
				FromColumn: fk.SourceColumn,
				ToTable:    qualifiedName(fk.TargetSchema, fk.TargetTable),
				ToColumn:   fk.TargetColumn,
			})
		}
		return edges, nil
	}
}

func qualifiedName(schemaName, tableName string) string {
	if schemaName == "" {
		return tableName
	}
	return schemaName + "." + tableName
}
