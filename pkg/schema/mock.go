package schema

import "context"

// MockColumnProvider is a test double for TableColumnProvider. Behavior
// is injected per test through the function fields; unset fields return
// empty results.
type MockColumnProvider struct {
	ColumnsForFunc           func(ctx context.Context, schemaName, tableName string) ([]CatalogColumn, error)
	PrimaryKeyColumnsForFunc func(ctx context.Context, schemaName, tableName string) ([]string, error)

	ColumnsForCalls    int
	PrimaryKeyForCalls int
}

var _ TableColumnProvider = (*MockColumnProvider)(nil)

func (m *MockColumnProvider) ColumnsFor(ctx context.Context, schemaName, tableName string) ([]CatalogColumn, error) {
	m.ColumnsForCalls++
	if m.ColumnsForFunc != nil {
		return m.ColumnsForFunc(ctx, schemaName, tableName)
	}
	return nil, nil
}

func (m *MockColumnProvider) PrimaryKeyColumnsFor(ctx context.Context, schemaName, tableName string) ([]string, error) {
	m.PrimaryKeyForCalls++
	if m.PrimaryKeyColumnsForFunc != nil {
		return m.PrimaryKeyColumnsForFunc(ctx, schemaName, tableName)
	}
	return nil, nil
}
