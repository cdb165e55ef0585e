// Package services wires resolution, generation, correction and
// execution into the chat and fix operations the engine serves.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/adapters/datasource"
	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/llm"
	"github.com/ekaya-inc/sqlmend/pkg/logging"
	"github.com/ekaya-inc/sqlmend/pkg/prompts"
	"github.com/ekaya-inc/sqlmend/pkg/retry"
	"github.com/ekaya-inc/sqlmend/pkg/sql"
)

const (
	// recentTurnsInPrompt bounds how much history the generation prompt
	// carries; the full window stays on the session.
	recentTurnsInPrompt = 5

	// defaultChatRowLimit caps result rows returned to a chat turn when
	// the request doesn't ask for a limit. Executors clamp further.
	defaultChatRowLimit = 100

	noCandidatesClarification = "I couldn't match the question to any tables with confidence. Did you mean one of the suggested tables?"
)

// ChatRequest is one conversational turn.
type ChatRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	Question      string `json:"question"`
	SkipExecution bool   `json:"skip_execution,omitempty"`
	RowLimit      int    `json:"row_limit,omitempty"`
}

// ChatResult is the answer to one turn. Exactly one of SQL or
// Clarification is meaningful: a clarification turn produced no
// statement and carries Suggestions or the analyzer's question instead.
type ChatResult struct {
	SessionID      string                           `json:"session_id"`
	SQL            string                           `json:"sql,omitempty"`
	Results        *datasource.QueryExecutionResult `json:"results,omitempty"`
	Changes        []string                         `json:"changes,omitempty"`
	Issues         []string                         `json:"issues,omitempty"`
	Suggestions    []string                         `json:"suggestions,omitempty"`
	Clarification  string                           `json:"clarification,omitempty"`
	RepairAttempts int                              `json:"repair_attempts,omitempty"`
}

// FixRequest asks for a correction pass over an existing statement.
// Question gives the resolution context; with a session it may be
// empty, in which case the session's last resolution is reused.
type FixRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question,omitempty"`
	SQL       string `json:"sql"`
}

// FixResult reports a correction pass.
type FixResult struct {
	SessionID    string   `json:"session_id,omitempty"`
	CorrectedSQL string   `json:"corrected_sql,omitempty"`
	Changes      []string `json:"changes,omitempty"`
	Issues       []string `json:"issues,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// GenerationService serves the two interactive operations: a full
// question-to-results chat turn and a correction-only fix pass.
type GenerationService interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
	Fix(ctx context.Context, req FixRequest) (*FixResult, error)
}

// GenerationOptions tunes the per-turn pipeline.
type GenerationOptions struct {
	// Temperature passed to the model for SQL generation.
	Temperature float64

	// MaxRepairAttempts bounds re-prompts after a repairable failure.
	MaxRepairAttempts int

	// RowLimit is the default result row cap for chat turns.
	RowLimit int
}

type generationService struct {
	resolver ResolutionService
	fixer    *sql.AutoFixer
	client   llm.LLMClient
	executor datasource.QueryExecutor
	sessions *SessionManager
	opts     GenerationOptions
	logger   *zap.Logger
}

// NewGenerationService creates a GenerationService. executor may be
// nil; chat turns then return corrected SQL without results.
func NewGenerationService(
	resolver ResolutionService,
	fixer *sql.AutoFixer,
	client llm.LLMClient,
	executor datasource.QueryExecutor,
	sessions *SessionManager,
	opts GenerationOptions,
	logger *zap.Logger,
) GenerationService {
	if opts.MaxRepairAttempts < 0 {
		opts.MaxRepairAttempts = 0
	}
	if opts.RowLimit < 1 {
		opts.RowLimit = defaultChatRowLimit
	}
	return &generationService{
		resolver: resolver,
		fixer:    fixer,
		client:   client,
		executor: executor,
		sessions: sessions,
		opts:     opts,
		logger:   logger.Named("generation"),
	}
}

var _ GenerationService = (*generationService)(nil)

// Chat runs one turn end to end: resolve the question, prompt the
// model, extract and validate the statement, auto-fix it against the
// pool, screen its literals, then execute. A repairable execution
// failure re-prompts with the analyzer's hint up to MaxRepairAttempts
// times.
func (s *generationService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}

	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	chatTurnsTotal.Inc()
	started := time.Now()
	defer func() { turnDurationSeconds.Observe(time.Since(started).Seconds()) }()

	res, err := s.resolveCached(ctx, sess, question, "")
	if errors.Is(err, apperrors.ErrNoCandidateTables) {
		s.record(ctx, sess, Turn{Question: question})
		out := &ChatResult{SessionID: sess.ID, Clarification: noCandidatesClarification}
		if res != nil {
			out.Suggestions = res.Suggestions
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	conversation := renderConversation(sess.RecentTurns(recentTurnsInPrompt))
	prompt := prompts.BuildGenerationPrompt(question, res.SchemaContext, res.ValueHints, conversation)

	result := &ChatResult{SessionID: sess.ID}
	limit := req.RowLimit
	if limit < 1 {
		limit = s.opts.RowLimit
	}

	for attempt := 0; attempt <= s.opts.MaxRepairAttempts; attempt++ {
		raw, err := s.generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("llm generation: %w", err)
		}

		candidate := sql.ExtractSQL(raw)
		if candidate == "" {
			// The model answered in prose; surface it instead of a
			// statement.
			result.SQL = ""
			result.Results = nil
			result.Changes = nil
			result.Issues = nil
			result.Clarification = trimForDisplay(raw)
			break
		}
		candidate = sql.CleanMeaninglessWhere(candidate)

		vr := sql.ValidateAndNormalize(candidate)
		if vr.Error != nil {
			if attempt < s.opts.MaxRepairAttempts {
				prompt = s.repairPrompt(result, question, res, candidate, vr.Error.Error())
				continue
			}
			return nil, fmt.Errorf("%v: %w", vr.Error, apperrors.ErrQueryRejected)
		}

		report, err := s.fixer.Fix(vr.NormalizedSQL, res.Result.Pool)
		if err != nil {
			if attempt < s.opts.MaxRepairAttempts {
				prompt = s.repairPrompt(result, question, res, vr.NormalizedSQL, "the statement could not be parsed: "+err.Error())
				continue
			}
			return nil, fmt.Errorf("generated statement unusable: %w", err)
		}

		result.SQL = report.CorrectedSQL
		result.Changes = report.Changes
		result.Issues = report.Issues
		autoFixChangesTotal.Add(float64(len(report.Changes)))
		autoFixIssuesTotal.Add(float64(len(report.Issues)))

		if findings := sql.ScreenStatementLiterals(report.CorrectedSQL); len(findings) > 0 {
			return nil, fmt.Errorf("literal %q matches injection fingerprint %s: %w",
				findings[0].Literal, findings[0].Fingerprint, apperrors.ErrQueryRejected)
		}

		if req.SkipExecution || s.executor == nil {
			break
		}

		exec, err := s.executor.Query(ctx, report.CorrectedSQL, limit)
		if err == nil {
			result.Results = exec
			break
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		diag := AnalyzeExecutionError(err)
		s.logger.Warn("query execution failed",
			zap.String("category", string(diag.Category)),
			zap.Int("attempt", attempt),
			zap.String("sql", logging.SanitizeQuery(report.CorrectedSQL)),
			zap.String("error", logging.SanitizeError(err)))
		if !diag.Repairable || attempt >= s.opts.MaxRepairAttempts {
			result.Results = nil
			result.Issues = append(result.Issues, "execution failed: "+diag.Message)
			result.Clarification = diag.Question
			break
		}
		prompt = s.repairPrompt(result, question, res, report.CorrectedSQL, diag.Hint)
	}

	s.record(ctx, sess, Turn{Question: question, SQL: result.SQL})
	sess.SetLastResolution(res)
	return result, nil
}

// Fix runs the correction pass on caller-supplied SQL.
func (s *generationService) Fix(ctx context.Context, req FixRequest) (*FixResult, error) {
	sqlText := strings.TrimSpace(req.SQL)
	if sqlText == "" {
		return nil, errors.New("sql must not be empty")
	}
	question := strings.TrimSpace(req.Question)

	var sess *Session
	if req.SessionID != "" {
		var err error
		sess, err = s.sessions.GetOrCreate(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		sess.Lock()
		defer sess.Unlock()
	}

	res, err := s.resolveForFix(ctx, sess, question, sqlText)
	if errors.Is(err, apperrors.ErrNoCandidateTables) {
		fr := &FixResult{Issues: []string{"no tables matched the question; cannot resolve references"}}
		if res != nil {
			fr.Suggestions = res.Suggestions
		}
		if sess != nil {
			fr.SessionID = sess.ID
		}
		return fr, nil
	}
	if err != nil {
		return nil, err
	}

	fr := &FixResult{}
	if sess != nil {
		fr.SessionID = sess.ID
		sess.SetLastResolution(res)
	}

	vr := sql.ValidateAndNormalize(sqlText)
	switch {
	case errors.Is(vr.Error, sql.ErrMultipleStatements), errors.Is(vr.Error, sql.ErrNotReadOnly):
		return nil, fmt.Errorf("%v: %w", vr.Error, apperrors.ErrQueryRejected)
	case vr.Error != nil:
		// Untokenizable input is the one hard failure of a fix attempt:
		// hand back the original text with the reason.
		fr.CorrectedSQL = sqlText
		fr.Issues = append(fr.Issues, "statement could not be parsed: "+vr.Error.Error())
		return fr, nil
	}

	report, err := s.fixer.Fix(vr.NormalizedSQL, res.Result.Pool)
	if err != nil {
		fr.CorrectedSQL = report.CorrectedSQL
		fr.Issues = append(fr.Issues, err.Error())
		return fr, nil
	}
	fr.CorrectedSQL = report.CorrectedSQL
	fr.Changes = report.Changes
	fr.Issues = report.Issues
	autoFixChangesTotal.Add(float64(len(report.Changes)))
	autoFixIssuesTotal.Add(float64(len(report.Issues)))

	for _, f := range sql.ScreenStatementLiterals(report.CorrectedSQL) {
		fr.Issues = append(fr.Issues, fmt.Sprintf("string literal %q matches injection fingerprint %s", f.Literal, f.Fingerprint))
	}

	if s.executor != nil {
		if err := s.executor.ValidateQuery(ctx, report.CorrectedSQL); err != nil {
			fr.Issues = append(fr.Issues, fmt.Sprintf("corrected statement still fails validation: %v", err))
		}
	}
	return fr, nil
}

// resolveCached serves a resolution from the session cache, falling
// back to a full resolve and caching the outcome.
func (s *generationService) resolveCached(ctx context.Context, sess *Session, question, sqlText string) (*Resolution, error) {
	key := ResolutionCacheKey(question, sqlText)
	if res, ok := sess.CachedResolution(key); ok {
		resolutionCacheHitsTotal.Inc()
		return res, nil
	}
	resolutionCacheMissesTotal.Inc()

	res, err := s.resolver.Resolve(ctx, question)
	if err != nil {
		return res, err
	}
	sess.StoreResolution(key, res)
	return res, nil
}

func (s *generationService) resolveForFix(ctx context.Context, sess *Session, question, sqlText string) (*Resolution, error) {
	if question == "" {
		if sess != nil {
			if last := sess.LastResolution(); last != nil && last.Result != nil {
				return last, nil
			}
		}
		return nil, errors.New("question must not be empty")
	}
	if sess != nil {
		return s.resolveCached(ctx, sess, question, sqlText)
	}
	return s.resolver.Resolve(ctx, question)
}

// generate calls the model, retrying transport-level failures the LLM
// error classifier marks retryable.
func (s *generationService) generate(ctx context.Context, prompt string) (string, error) {
	var raw string
	err := retry.DoIfRetryable(ctx, nil, func() error {
		out, err := s.client.GenerateResponse(ctx, prompt, prompts.GenerationSystemPrompt, s.opts.Temperature)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	return raw, err
}

func (s *generationService) repairPrompt(result *ChatResult, question string, res *Resolution, failedSQL, problem string) string {
	repairAttemptsTotal.Inc()
	result.RepairAttempts++
	return prompts.BuildRepairPrompt(question, res.SchemaContext, failedSQL, []string{problem})
}

func (s *generationService) record(ctx context.Context, sess *Session, t Turn) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	sess.RecordTurn(t)
	s.sessions.Mirror(ctx, sess.ID, t)
}

// renderConversation formats prior turns for the generation prompt.
func renderConversation(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, t := range turns {
		b.WriteString("Q: ")
		b.WriteString(t.Question)
		b.WriteByte('\n')
		if t.SQL != "" {
			b.WriteString("SQL: ")
			b.WriteString(t.SQL)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

const maxClarificationLen = 500

// trimForDisplay bounds a prose model answer surfaced as a
// clarification.
func trimForDisplay(raw string) string {
	return logging.TruncateString(strings.TrimSpace(raw), maxClarificationLen)
}
