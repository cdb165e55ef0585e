// Package datasource defines the adapter surface between the engine and
// the customer database it resolves against. Adapters are read-only
// clients of a live catalog: they discover tables, columns and foreign
// keys, sample distinct values for the value index, and execute
// generated SELECT statements under a hard row cap.
package datasource

import (
	"context"
)

// MaxQueryLimit is the hard cap on rows returned by Query. Callers may
// ask for less, never for more.
const MaxQueryLimit = 1000

// TableMetadata describes one user table in the catalog.
type TableMetadata struct {
	SchemaName string
	TableName  string
	RowCount   int64
}

// ColumnMetadata describes one column of a table.
type ColumnMetadata struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	IsPrimaryKey    bool
	OrdinalPosition int
	DefaultValue    *string
}

// ForeignKeyMetadata describes one foreign-key relationship.
type ForeignKeyMetadata struct {
	ConstraintName string
	SourceSchema   string
	SourceTable    string
	SourceColumn   string
	TargetSchema   string
	TargetTable    string
	TargetColumn   string
}

// ColumnInfo is the name and database type of one result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // database type name (e.g. "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the bounded result set of a Query call.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ConnectionTester verifies connectivity and credentials.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid
	// credentials and that we landed on the configured database.
	TestConnection(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// SchemaDiscoverer reads catalog metadata from a live database.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables (system schemas excluded).
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns the columns of one table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns all foreign-key relationships between
	// user tables.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)

	// GetDistinctValues returns up to limit distinct non-null values
	// from a column, rendered as text and sorted. Feeds the literal
	// value index at startup.
	GetDistinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error)

	// Close releases any resources held by the discoverer.
	Close() error
}

// QueryExecutor runs generated SELECT statements.
//
// Implementations always wrap the statement with a bounded limit:
//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
//
// where n is min(limit, MaxQueryLimit), with MaxQueryLimit applied when
// limit is zero or negative.
type QueryExecutor interface {
	// Query runs a SELECT statement and returns bounded results.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// ValidateQuery checks a statement for syntactic validity without
	// executing it.
	ValidateQuery(ctx context.Context, sqlQuery string) error

	// QuoteIdentifier quotes an identifier using the dialect's rules.
	QuoteIdentifier(name string) string

	// Close releases any resources held by the executor.
	Close() error
}
