package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AdapterInfo describes a registered adapter type.
type AdapterInfo struct {
	// Type is the identifier used in configuration ("postgres", "mssql").
	Type string

	// DisplayName is a human-readable name for logs and errors.
	DisplayName string

	// Description summarizes supported servers.
	Description string
}

// Factory creates a ConnectionTester from a generic config map.
type Factory func(ctx context.Context, config map[string]any, logger *zap.Logger) (ConnectionTester, error)

// SchemaDiscovererFactory creates a SchemaDiscoverer from a generic config map.
type SchemaDiscovererFactory func(ctx context.Context, config map[string]any, logger *zap.Logger) (SchemaDiscoverer, error)

// QueryExecutorFactory creates a QueryExecutor from a generic config map.
type QueryExecutorFactory func(ctx context.Context, config map[string]any, logger *zap.Logger) (QueryExecutor, error)

// AdapterRegistration bundles an adapter's info with its factories.
type AdapterRegistration struct {
	Info                    AdapterInfo
	Factory                 Factory
	SchemaDiscovererFactory SchemaDiscovererFactory
	QueryExecutorFactory    QueryExecutorFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register adds an adapter registration. Called from adapter package
// init functions; panics on duplicate type, which indicates a build
// wiring bug rather than a runtime condition.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if reg.Info.Type == "" {
		panic("datasource: registration with empty type")
	}
	if _, exists := registry[reg.Info.Type]; exists {
		panic(fmt.Sprintf("datasource: adapter %q registered twice", reg.Info.Type))
	}
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for every registered adapter type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	infos := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		infos = append(infos, reg.Info)
	}
	return infos
}

// IsRegistered reports whether an adapter type is available.
func IsRegistered(adapterType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[adapterType]
	return ok
}

// GetFactory returns the ConnectionTester factory for a type.
func GetFactory(adapterType string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[adapterType]
	if !ok {
		return nil, fmt.Errorf("datasource type %q is not registered", adapterType)
	}
	return reg.Factory, nil
}

// GetSchemaDiscovererFactory returns the discoverer factory for a type.
func GetSchemaDiscovererFactory(adapterType string) (SchemaDiscovererFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[adapterType]
	if !ok {
		return nil, fmt.Errorf("datasource type %q is not registered", adapterType)
	}
	if reg.SchemaDiscovererFactory == nil {
		return nil, fmt.Errorf("datasource type %q has no schema discoverer", adapterType)
	}
	return reg.SchemaDiscovererFactory, nil
}

// GetQueryExecutorFactory returns the executor factory for a type.
func GetQueryExecutorFactory(adapterType string) (QueryExecutorFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[adapterType]
	if !ok {
		return nil, fmt.Errorf("datasource type %q is not registered", adapterType)
	}
	if reg.QueryExecutorFactory == nil {
		return nil, fmt.Errorf("datasource type %q has no query executor", adapterType)
	}
	return reg.QueryExecutorFactory, nil
}
