// Package tools registers the MCP tools exposed by the engine:
// resolve_schema, fix_sql, run_query, and health.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/services"
)

// Deps contains the service dependencies shared by all tools.
type Deps struct {
	Resolution services.ResolutionService
	Generation services.GenerationService
	Logger     *zap.Logger
}

// RegisterAll registers every tool on the MCP server.
func RegisterAll(s *server.MCPServer, deps *Deps, version string) {
	RegisterHealthTool(s, version)
	RegisterResolveSchemaTool(s, deps)
	RegisterFixSQLTool(s, deps)
	RegisterRunQueryTool(s, deps)
}
