package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/middleware"
	"github.com/ekaya-inc/sqlmend/pkg/services"
)

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	Question      string `json:"question"`
	SkipExecution bool   `json:"skip_execution,omitempty"`
	RowLimit      int    `json:"row_limit,omitempty"`
}

// FixRequest is the POST /api/fix body. Question may be empty when a
// session with a prior turn is supplied.
type FixRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question,omitempty"`
	SQL       string `json:"sql"`
}

// ChatHandler serves the conversational endpoints: generate SQL for a
// question, and correct caller-supplied SQL.
type ChatHandler struct {
	generation services.GenerationService
	logger     *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(generation services.GenerationService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{generation: generation, logger: logger}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, auth *middleware.BearerAuth) {
	mux.HandleFunc("POST /api/chat", auth.Require(h.Chat))
	mux.HandleFunc("POST /api/fix", auth.Require(h.Fix))
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_question", "Question is required")
		return
	}

	result, err := h.generation.Chat(r.Context(), services.ChatRequest{
		SessionID:     req.SessionID,
		Question:      req.Question,
		SkipExecution: req.SkipExecution,
		RowLimit:      req.RowLimit,
	})
	if err != nil {
		h.serviceError(w, "chat", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("failed to write chat response", zap.Error(err))
	}
}

// Fix handles POST /api/fix.
func (h *ChatHandler) Fix(w http.ResponseWriter, r *http.Request) {
	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_sql", "SQL is required")
		return
	}
	if strings.TrimSpace(req.Question) == "" && req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_question", "Question is required without a session")
		return
	}

	result, err := h.generation.Fix(r.Context(), services.FixRequest{
		SessionID: req.SessionID,
		Question:  req.Question,
		SQL:       req.SQL,
	})
	if err != nil {
		h.serviceError(w, "fix", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("failed to write fix response", zap.Error(err))
	}
}

// serviceError maps generation-service failures onto HTTP statuses.
func (h *ChatHandler) serviceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrQueryRejected):
		h.writeError(w, http.StatusUnprocessableEntity, "query_rejected", err.Error())
	case errors.Is(err, apperrors.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "session_not_found", "Unknown session id")
	case errors.Is(err, context.Canceled):
		// The client went away; nothing useful to write.
		h.logger.Debug("request canceled", zap.String("op", op))
	default:
		h.logger.Error("turn failed",
			zap.String("op", op),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "The request could not be completed")
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
