package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"go.uber.org/zap"
)

// fkCacheKey is the single key under which the foreign-key list is
// cached; FK discovery is catalog-wide, not per table.
const fkCacheKey = "__foreign_keys__"

// CacheOptions bounds the metadata cache.
type CacheOptions struct {
	// TTL is how long a cached entry is served before the catalog is
	// re-read. Zero falls back to five minutes.
	TTL time.Duration

	// Capacity is the entry capacity of the column cache. Zero falls
	// back to 4096.
	Capacity int
}

func (o CacheOptions) withDefaults() CacheOptions {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.Capacity <= 0 {
		o.Capacity = 4096
	}
	return o
}

// CachedDiscoverer wraps a SchemaDiscoverer with a TTL cache over
// column and foreign-key metadata. The pool builder reads columns for
// every pooled table on every turn; the catalog changes rarely. Table
// listings and value sampling pass through uncached since they run at
// startup only.
type CachedDiscoverer struct {
	inner       SchemaDiscoverer
	columns     otter.Cache[string, []ColumnMetadata]
	foreignKeys otter.Cache[string, []ForeignKeyMetadata]
	logger      *zap.Logger
}

// NewCachedDiscoverer wraps inner with TTL caching.
func NewCachedDiscoverer(inner SchemaDiscoverer, opts CacheOptions, logger *zap.Logger) (*CachedDiscoverer, error) {
	opts = opts.withDefaults()

	columns, err := otter.MustBuilder[string, []ColumnMetadata](opts.Capacity).
		WithTTL(opts.TTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build column cache: %w", err)
	}

	foreignKeys, err := otter.MustBuilder[string, []ForeignKeyMetadata](16).
		WithTTL(opts.TTL).
		Build()
	if err != nil {
		columns.Close()
		return nil, fmt.Errorf("build foreign-key cache: %w", err)
	}

	return &CachedDiscoverer{
		inner:       inner,
		columns:     columns,
		foreignKeys: foreignKeys,
		logger:      logger.Named("metacache"),
	}, nil
}

// DiscoverTables lists tables straight from the catalog.
func (c *CachedDiscoverer) DiscoverTables(ctx context.Context) ([]TableMetadata, error) {
	return c.inner.DiscoverTables(ctx)
}

// DiscoverColumns serves cached columns when fresh, reading the catalog
// on a miss.
func (c *CachedDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error) {
	key := schemaName + "." + tableName
	if cols, ok := c.columns.Get(key); ok {
		return cols, nil
	}

	cols, err := c.inner.DiscoverColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	c.columns.Set(key, cols)
	c.logger.Debug("columns cached", zap.String("table", key), zap.Int("columns", len(cols)))
	return cols, nil
}

// DiscoverForeignKeys serves the cached foreign-key list when fresh.
func (c *CachedDiscoverer) DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error) {
	if fks, ok := c.foreignKeys.Get(fkCacheKey); ok {
		return fks, nil
	}

	fks, err := c.inner.DiscoverForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	c.foreignKeys.Set(fkCacheKey, fks)
	c.logger.Debug("foreign keys cached", zap.Int("count", len(fks)))
	return fks, nil
}

// GetDistinctValues samples straight from the catalog.
func (c *CachedDiscoverer) GetDistinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	return c.inner.GetDistinctValues(ctx, schemaName, tableName, columnName, limit)
}

// Invalidate drops all cached metadata. The next read hits the catalog.
func (c *CachedDiscoverer) Invalidate() {
	c.columns.Clear()
	c.foreignKeys.Clear()
}

// Close releases the caches and the wrapped discoverer.
func (c *CachedDiscoverer) Close() error {
	c.columns.Close()
	c.foreignKeys.Close()
	return c.inner.Close()
}

var _ SchemaDiscoverer = (*CachedDiscoverer)(nil)
