package datasource

import "context"

// MockDiscoverer is a test double for SchemaDiscoverer. Behavior is
// injected per test through the Func fields; calls are counted.
type MockDiscoverer struct {
	DiscoverTablesFunc      func(ctx context.Context) ([]TableMetadata, error)
	DiscoverColumnsFunc     func(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)
	DiscoverForeignKeysFunc func(ctx context.Context) ([]ForeignKeyMetadata, error)
	GetDistinctValuesFunc   func(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error)

	DiscoverTablesCalls      int
	DiscoverColumnsCalls     int
	DiscoverForeignKeysCalls int
	GetDistinctValuesCalls   int
	CloseCalls               int
}

var _ SchemaDiscoverer = (*MockDiscoverer)(nil)

func (m *MockDiscoverer) DiscoverTables(ctx context.Context) ([]TableMetadata, error) {
	m.DiscoverTablesCalls++
	if m.DiscoverTablesFunc != nil {
		return m.DiscoverTablesFunc(ctx)
	}
	return nil, nil
}

func (m *MockDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error) {
	m.DiscoverColumnsCalls++
	if m.DiscoverColumnsFunc != nil {
		return m.DiscoverColumnsFunc(ctx, schemaName, tableName)
	}
	return nil, nil
}

func (m *MockDiscoverer) DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error) {
	m.DiscoverForeignKeysCalls++
	if m.DiscoverForeignKeysFunc != nil {
		return m.DiscoverForeignKeysFunc(ctx)
	}
	return nil, nil
}

func (m *MockDiscoverer) GetDistinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	m.GetDistinctValuesCalls++
	if m.GetDistinctValuesFunc != nil {
		return m.GetDistinctValuesFunc(ctx, schemaName, tableName, columnName, limit)
	}
	return nil, nil
}

func (m *MockDiscoverer) Close() error {
	m.CloseCalls++
	return nil
}

// MockExecutor is a test double for QueryExecutor.
type MockExecutor struct {
	QueryFunc           func(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)
	ValidateQueryFunc   func(ctx context.Context, sqlQuery string) error
	QuoteIdentifierFunc func(name string) string

	QueryCalls         int
	ValidateQueryCalls int
	CloseCalls         int
}

var _ QueryExecutor = (*MockExecutor)(nil)

func (m *MockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error) {
	m.QueryCalls++
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sqlQuery, limit)
	}
	return &QueryExecutionResult{Rows: []map[string]any{}}, nil
}

func (m *MockExecutor) ValidateQuery(ctx context.Context, sqlQuery string) error {
	m.ValidateQueryCalls++
	if m.ValidateQueryFunc != nil {
		return m.ValidateQueryFunc(ctx, sqlQuery)
	}
	return nil
}

func (m *MockExecutor) QuoteIdentifier(name string) string {
	if m.QuoteIdentifierFunc != nil {
		return m.QuoteIdentifierFunc(name)
	}
	return `"` + name + `"`
}

func (m *MockExecutor) Close() error {
	m.CloseCalls++
	return nil
}
