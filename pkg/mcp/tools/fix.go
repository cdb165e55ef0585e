package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/services"
)

// RegisterFixSQLTool adds the fix_sql tool: a SQL statement in,
// corrected references and a change log out.
func RegisterFixSQLTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"fix_sql",
		mcp.WithDescription(
			"Correct table and column references in a SQL statement against the live schema. "+
				"Misspelled or unqualified names are rewritten to their catalog form and every "+
				"change is reported. The statement must be a single read-only SELECT.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("The SQL statement to correct"),
		),
		mcp.WithString(
			"question",
			mcp.Description("The natural-language question the statement answers; required unless session_id carries earlier context"),
		),
		mcp.WithString(
			"session_id",
			mcp.Description("Session to reuse resolved schema context from"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(sqlText) == "" {
			return NewErrorResult("missing_sql", "sql must not be empty"), nil
		}

		question := getOptionalString(req, "question")
		sessionID := getOptionalString(req, "session_id")
		if strings.TrimSpace(question) == "" && sessionID == "" {
			return NewErrorResult("missing_question", "question is required without a session_id"), nil
		}

		result, err := deps.Generation.Fix(ctx, services.FixRequest{
			SessionID: sessionID,
			Question:  question,
			SQL:       sqlText,
		})
		if err != nil {
			if errResult := actionableResult(err); errResult != nil {
				deps.Logger.Debug("fix_sql rejected input", zap.Error(err))
				return errResult, nil
			}
			deps.Logger.Error("fix_sql failed", zap.Error(err))
			return nil, fmt.Errorf("fix failed: %w", err)
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal fix result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
