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

const maxRunQueryRows = 1000

// RegisterRunQueryTool adds the run_query tool: a natural-language
// question in, generated SQL plus query results out.
func RegisterRunQueryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"run_query",
		mcp.WithDescription(
			"Answer a natural-language question against the database. Resolves the relevant "+
				"schema, generates a read-only SELECT, corrects table and column references, "+
				"executes it, and repairs failures automatically. Returns the SQL, the rows, "+
				"and every correction that was applied. Pass the returned session_id on "+
				"follow-up questions to keep conversation context.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The natural-language question to answer"),
		),
		mcp.WithString(
			"session_id",
			mcp.Description("Session id from a previous call; omit to start a new session"),
		),
		mcp.WithBoolean(
			"skip_execution",
			mcp.Description("Generate and correct SQL without executing it"),
		),
		mcp.WithNumber(
			"row_limit",
			mcp.Description("Max rows to return (default: 100, max: 1000)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(question) == "" {
			return NewErrorResult("missing_question", "question must not be empty"), nil
		}

		chatReq := services.ChatRequest{
			SessionID: getOptionalString(req, "session_id"),
			Question:  question,
		}
		if skip, ok := getOptionalBool(req, "skip_execution"); ok {
			chatReq.SkipExecution = skip
		}
		if limit, ok := getOptionalFloat(req, "row_limit"); ok {
			chatReq.RowLimit = int(limit)
			if chatReq.RowLimit > maxRunQueryRows {
				chatReq.RowLimit = maxRunQueryRows
			}
		}

		result, err := deps.Generation.Chat(ctx, chatReq)
		if err != nil {
			if errResult := actionableResult(err); errResult != nil {
				deps.Logger.Debug("run_query rejected input", zap.Error(err))
				return errResult, nil
			}
			deps.Logger.Error("run_query failed", zap.Error(err))
			return nil, fmt.Errorf("query failed: %w", err)
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
