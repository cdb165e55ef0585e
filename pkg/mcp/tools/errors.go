package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results. It is
// returned as a successful tool result so the calling agent sees the
// detail and can react, instead of the MCP client swallowing it.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for actionable errors the caller can fix (bad parameters,
// rejected statements, unknown sessions). System failures should still
// return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// actionableResult maps service errors the caller can act on to
// structured error results. It returns nil for system failures, which
// the tool handler should surface as a Go error instead.
func actionableResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrQueryRejected):
		return NewErrorResult("query_rejected", err.Error())
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return NewErrorResult("session_not_found", err.Error())
	case errors.Is(err, apperrors.ErrMalformedInput):
		return NewErrorResult("malformed_sql", err.Error())
	default:
		return nil
	}
}

// IsInputError reports whether an error was caused by caller input
// rather than a server failure. Input errors are logged at DEBUG, not
// ERROR.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, apperrors.ErrQueryRejected) ||
		errors.Is(err, apperrors.ErrSessionNotFound) ||
		errors.Is(err, apperrors.ErrMalformedInput) ||
		errors.Is(err, apperrors.ErrNoCandidateTables)
}
