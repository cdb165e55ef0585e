package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTool(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "1.2.3")

	names := listedTools(t, mcpServer)
	assert.True(t, names["health"], "health tool should be registered")

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":1}`)

	require.Nil(t, resp.Error)
	require.False(t, resp.Result.IsError)

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(contentText(t, resp)), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "sqlmend", health.Service)
	assert.Equal(t, "1.2.3", health.Version)
}

func TestHealthTool_VersionWithSpecialChars(t *testing.T) {
	// Version strings from CI can carry quotes; they must be JSON-escaped.
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	versionWithQuotes := `1.0.0-beta"test`
	RegisterHealthTool(mcpServer, versionWithQuotes)

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":1}`)

	require.Nil(t, resp.Error)

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(contentText(t, resp)), &health))
	assert.Equal(t, versionWithQuotes, health.Version)
}
