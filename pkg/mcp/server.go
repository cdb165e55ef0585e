// Package mcp exposes schema resolution, SQL correction and query
// execution to MCP clients over streamable HTTP.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server owns the engine's MCP endpoint. Tools register against MCP();
// the HTTP layer mounts Handler() under /mcp.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer builds the MCP server the tool set registers against.
func NewServer(name, version string, logger *zap.Logger) *Server {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)
	return &Server{mcp: s, logger: logger.Named("mcp")}
}

// MCP returns the underlying server for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler wraps the server in its stateless streamable-HTTP transport.
// Session routing lives in the tool arguments, not the transport, so
// every request is self-contained. The mux owns the endpoint path.
func (s *Server) Handler() http.Handler {
	s.logger.Debug("mcp transport ready")
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
