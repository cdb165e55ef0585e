package tools

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/services"
)

func TestFixSQLTool(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	gen := &mockGenerationService{
		fixResult: &services.FixResult{
			CorrectedSQL: "SELECT status FROM public.orders",
			Changes: []string{
				`table "ordrs" -> "public.orders"`,
				`column "sttus" -> "status"`,
			},
		},
	}
	RegisterFixSQLTool(mcpServer, &Deps{Generation: gen, Logger: zap.NewNop()})

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fix_sql","arguments":{"sql":"SELECT sttus FROM ordrs","question":"order status"}},"id":1}`)

	require.Nil(t, resp.Error)
	require.False(t, resp.Result.IsError)

	assert.Equal(t, "SELECT sttus FROM ordrs", gen.lastFixReq.SQL)
	assert.Equal(t, "order status", gen.lastFixReq.Question)

	var result services.FixResult
	require.NoError(t, json.Unmarshal([]byte(contentText(t, resp)), &result))
	assert.Equal(t, "SELECT status FROM public.orders", result.CorrectedSQL)
	assert.Len(t, result.Changes, 2)
}

func TestFixSQLTool_SessionWithoutQuestion(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	gen := &mockGenerationService{fixResult: &services.FixResult{CorrectedSQL: "SELECT 1"}}
	RegisterFixSQLTool(mcpServer, &Deps{Generation: gen, Logger: zap.NewNop()})

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fix_sql","arguments":{"sql":"SELECT 1","session_id":"11111111-1111-1111-1111-111111111111"}},"id":1}`)

	require.Nil(t, resp.Error)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", gen.lastFixReq.SessionID)
	assert.Equal(t, 1, gen.fixCalls)
}

func TestFixSQLTool_MissingQuestionAndSession(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	gen := &mockGenerationService{}
	RegisterFixSQLTool(mcpServer, &Deps{Generation: gen, Logger: zap.NewNop()})

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fix_sql","arguments":{"sql":"SELECT 1"}},"id":1}`)

	require.Nil(t, resp.Error)
	assert.True(t, resp.Result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(contentText(t, resp)), &errResp))
	assert.Equal(t, "missing_question", errResp.Code)
	assert.Equal(t, 0, gen.fixCalls)
}

func TestFixSQLTool_RejectedStatement(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	gen := &mockGenerationService{
		fixErr: fmt.Errorf("only read-only SELECT statements are allowed: %w", apperrors.ErrQueryRejected),
	}
	RegisterFixSQLTool(mcpServer, &Deps{Generation: gen, Logger: zap.NewNop()})

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fix_sql","arguments":{"sql":"DROP TABLE orders","question":"remove orders"}},"id":1}`)

	require.Nil(t, resp.Error)
	assert.True(t, resp.Result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(contentText(t, resp)), &errResp))
	assert.Equal(t, "query_rejected", errResp.Code)
	assert.Contains(t, errResp.Message, "read-only")
}

func TestFixSQLTool_UnknownSession(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	gen := &mockGenerationService{
		fixErr: fmt.Errorf("session id %q: %w", "bogus", apperrors.ErrSessionNotFound),
	}
	RegisterFixSQLTool(mcpServer, &Deps{Generation: gen, Logger: zap.NewNop()})

	resp := callTool(t, mcpServer,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fix_sql","arguments":{"sql":"SELECT 1","session_id":"bogus"}},"id":1}`)

	require.Nil(t, resp.Error)
	assert.True(t, resp.Result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(contentText(t, resp)), &errResp))
	assert.Equal(t, "session_not_found", errResp.Code)
}
