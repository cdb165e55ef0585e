package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/mcp"
	"github.com/ekaya-inc/sqlmend/pkg/middleware"
)

// MCPHandler handles MCP protocol requests over HTTP.
type MCPHandler struct {
	transport http.Handler
	logger    *zap.Logger
}

// NewMCPHandler creates a new MCP handler from an MCP server.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		transport: mcpServer.Handler(),
		logger:    logger,
	}
}

// RegisterRoutes registers the MCP endpoint.
// Middleware layers, innermost first: JSON-RPC request logging, bearer
// authentication, then a method check that rejects non-POST before auth runs.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux, auth *middleware.BearerAuth) {
	loggedHandler := middleware.MCPRequestLogger(h.logger)(h.transport)
	authHandler := auth.Require(loggedHandler.ServeHTTP)
	mux.Handle("/mcp", h.requirePOST(authHandler))
}

// requirePOST returns 405 Method Not Allowed for non-POST requests.
// MCP over HTTP streaming carries JSON-RPC in POST bodies only.
func (h *MCPHandler) requirePOST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}
