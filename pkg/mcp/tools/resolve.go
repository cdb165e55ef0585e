package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/services"
)

type resolvedColumn struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	References string `json:"references,omitempty"`
}

type resolvedTable struct {
	Name    string           `json:"name"`
	Columns []resolvedColumn `json:"columns"`
}

// resolveSchemaResult is the response structure for resolve_schema.
// SchemaContext is the rendered block a caller can paste straight into
// its own generation prompt.
type resolveSchemaResult struct {
	Tables        []resolvedTable     `json:"tables"`
	JoinPaths     []string            `json:"join_paths,omitempty"`
	KnownValues   map[string][]string `json:"known_values,omitempty"`
	SchemaContext string              `json:"schema_context"`
	Issues        []string            `json:"issues,omitempty"`
}

// RegisterResolveSchemaTool adds the resolve_schema tool: question in,
// candidate tables with columns, join paths, and known values out.
func RegisterResolveSchemaTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"resolve_schema",
		mcp.WithDescription(
			"Resolve the database tables, columns, join paths, and known data values "+
				"relevant to a natural-language question. Returns a compact schema pool "+
				"plus a ready-to-use schema context block for SQL generation. "+
				"If nothing matches, the error carries table suggestions to offer the user.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The natural-language question to resolve schema for"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
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

		res, err := deps.Resolution.Resolve(ctx, question)
		if errors.Is(err, apperrors.ErrNoCandidateTables) {
			var suggestions []string
			if res != nil {
				suggestions = res.Suggestions
			}
			return NewErrorResultWithDetails(
				"no_candidate_tables",
				"no tables matched the question; rephrase or pick one of the suggested tables",
				map[string]any{"suggestions": suggestions},
			), nil
		}
		if err != nil {
			deps.Logger.Error("resolve_schema failed", zap.Error(err))
			return nil, fmt.Errorf("schema resolution failed: %w", err)
		}

		jsonResult, err := json.Marshal(buildResolveResult(res))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal resolve result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func buildResolveResult(res *services.Resolution) resolveSchemaResult {
	out := resolveSchemaResult{
		SchemaContext: res.SchemaContext,
		Issues:        res.Result.Issues,
	}

	for _, name := range res.Result.Pool.Tables {
		entry := res.Result.Pool.Get(name)
		if entry == nil {
			continue
		}
		rt := resolvedTable{Name: entry.Name, Columns: make([]resolvedColumn, 0, len(entry.Columns))}
		for _, col := range entry.Columns {
			rc := resolvedColumn{
				Name:       col.Name,
				Type:       col.DataType,
				PrimaryKey: col.IsPrimaryKey,
			}
			if col.FKReference != nil {
				rc.References = col.FKReference.Table + "." + col.FKReference.Column
			}
			rt.Columns = append(rt.Columns, rc)
		}
		out.Tables = append(out.Tables, rt)
	}

	for _, path := range res.Result.Paths {
		out.JoinPaths = append(out.JoinPaths, path.Descriptor())
	}
	sort.Strings(out.JoinPaths)

	if len(res.Result.Values) > 0 {
		out.KnownValues = res.Result.Values
	}
	return out
}
