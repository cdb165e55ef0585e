package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/adapters/datasource"
	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/llm"
	"github.com/ekaya-inc/sqlmend/pkg/schema"
	"github.com/ekaya-inc/sqlmend/pkg/sql"
)

type mockResolver struct {
	ResolveFunc  func(ctx context.Context, question string) (*Resolution, error)
	ResolveCalls int
}

func (m *mockResolver) Resolve(ctx context.Context, question string) (*Resolution, error) {
	m.ResolveCalls++
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, question)
	}
	return nil, errors.New("ResolveFunc not set")
}

var _ ResolutionService = (*mockResolver)(nil)

// testResolution hands back a two-table pool the way the pool builder
// would assemble it for an orders question.
func testResolution() *Resolution {
	pool := schema.NewSchemaPool()
	pool.Add(&schema.TableEntry{
		Name: "public.orders",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "customer_id", DataType: "bigint", IsForeignKey: true, FKReference: &schema.FkRef{Table: "public.customers", Column: "id"}},
			{Name: "status", DataType: "character varying"},
			{Name: "total", DataType: "numeric"},
		},
	})
	pool.Add(&schema.TableEntry{
		Name: "public.customers",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "name", DataType: "character varying"},
		},
	})
	return &Resolution{
		Result:        &schema.BuildResult{Pool: pool, Values: make(schema.ValueContext)},
		SchemaContext: "=== TEST SCHEMA ===",
	}
}

func staticResolver() *mockResolver {
	return &mockResolver{ResolveFunc: func(ctx context.Context, question string) (*Resolution, error) {
		return testResolution(), nil
	}}
}

func newTestGeneration(resolver ResolutionService, client llm.LLMClient, executor datasource.QueryExecutor, opts GenerationOptions) (GenerationService, *SessionManager) {
	logger := zap.NewNop()
	sessions := NewSessionManager(20, 10, nil, logger)
	svc := NewGenerationService(resolver, sql.NewAutoFixer(logger), client, executor, sessions, opts, logger)
	return svc, sessions
}

func fencedSQL(stmt string) string {
	return "```sql\n" + stmt + "\n```"
}

func TestChatHappyPath(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT * FROM orders WHERE status = 'pending'"), nil
	}
	executor := &datasource.MockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{
				Columns:  []datasource.ColumnInfo{{Name: "id", Type: "INT8"}},
				Rows:     []map[string]any{{"id": int64(1)}},
				RowCount: 1,
			}, nil
		},
	}
	svc, sessions := newTestGeneration(staticResolver(), client, executor, GenerationOptions{MaxRepairAttempts: 2})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "show pending orders"})
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "public.orders")
	assert.NotEmpty(t, res.Changes, "schema-qualifying the table is a recorded change")
	require.NotNil(t, res.Results)
	assert.Equal(t, 1, res.Results.RowCount)
	assert.Zero(t, res.RepairAttempts)
	assert.Empty(t, res.Clarification)

	sess, err := sessions.Get(res.SessionID)
	require.NoError(t, err)
	h := sess.History()
	require.Len(t, h, 1)
	assert.Equal(t, "show pending orders", h[0].Question)
	assert.Equal(t, res.SQL, h[0].SQL)
}

func TestChatRepairsAfterExecutionFailure(t *testing.T) {
	client := llm.NewMockLLMClient()
	call := 0
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		call++
		if call == 1 {
			return fencedSQL("SELECT total FROM orders"), nil
		}
		return fencedSQL("SELECT status FROM orders"), nil
	}
	executor := &datasource.MockExecutor{}
	executor.QueryFunc = func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
		if executor.QueryCalls == 1 {
			return nil, errors.New(`ERROR: column "total" does not exist (SQLSTATE 42703)`)
		}
		return &datasource.QueryExecutionResult{
			Rows:     []map[string]any{{"status": "pending"}, {"status": "shipped"}},
			RowCount: 2,
		}, nil
	}
	svc, _ := newTestGeneration(staticResolver(), client, executor, GenerationOptions{MaxRepairAttempts: 2})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "order totals"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RepairAttempts)
	assert.Contains(t, res.SQL, "status")
	require.NotNil(t, res.Results)
	assert.Equal(t, 2, res.Results.RowCount)
	assert.Equal(t, 2, executor.QueryCalls)

	require.Len(t, client.Prompts, 2)
	assert.Contains(t, client.Prompts[1], "Your previous SQL attempt failed.")
	assert.Contains(t, client.Prompts[1], "total")
	assert.Contains(t, client.Prompts[1], "SELECT total FROM public.orders")
}

func TestChatRepairExhaustionSurfacesFailure(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT total FROM orders"), nil
	}
	executor := &datasource.MockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New(`ERROR: column "total" does not exist (SQLSTATE 42703)`)
		},
	}
	svc, _ := newTestGeneration(staticResolver(), client, executor, GenerationOptions{MaxRepairAttempts: 1})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "order totals"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RepairAttempts)
	assert.Equal(t, 2, executor.QueryCalls)
	assert.Nil(t, res.Results)
	require.NotEmpty(t, res.Issues)
	assert.Contains(t, res.Issues[len(res.Issues)-1], "execution failed")
}

func TestChatPermissionFailureAsksUser(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT * FROM orders"), nil
	}
	executor := &datasource.MockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New("pq: permission denied for table orders")
		},
	}
	svc, _ := newTestGeneration(staticResolver(), client, executor, GenerationOptions{MaxRepairAttempts: 2})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "show orders"})
	require.NoError(t, err)

	assert.Equal(t, 1, executor.QueryCalls, "permission failures are not worth a repair round-trip")
	assert.Zero(t, res.RepairAttempts)
	assert.Nil(t, res.Results)
	assert.NotEmpty(t, res.Clarification)
}

func TestChatClarifiesWhenNothingMatches(t *testing.T) {
	resolver := &mockResolver{ResolveFunc: func(ctx context.Context, question string) (*Resolution, error) {
		res := &Resolution{Suggestions: []string{"orders", "customers"}}
		return res, fmt.Errorf("no search source cleared its threshold: %w", apperrors.ErrNoCandidateTables)
	}}
	client := llm.NewMockLLMClient()
	svc, sessions := newTestGeneration(resolver, client, &datasource.MockExecutor{}, GenerationOptions{})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "quarterly flux capacitance"})
	require.NoError(t, err)

	assert.Empty(t, res.SQL)
	assert.Equal(t, []string{"orders", "customers"}, res.Suggestions)
	assert.NotEmpty(t, res.Clarification)
	assert.Zero(t, client.GenerateResponseCalls)

	sess, err := sessions.Get(res.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.History(), 1)
	assert.Empty(t, sess.History()[0].SQL)
}

func TestChatSurfacesProseAnswer(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "Which month do you mean? I need a date range to answer that.", nil
	}
	executor := &datasource.MockExecutor{}
	svc, _ := newTestGeneration(staticResolver(), client, executor, GenerationOptions{MaxRepairAttempts: 2})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "orders for the month"})
	require.NoError(t, err)

	assert.Empty(t, res.SQL)
	assert.Contains(t, res.Clarification, "Which month")
	assert.Zero(t, executor.QueryCalls)
}

func TestChatRejectsNonSelect(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("DELETE FROM orders"), nil
	}
	svc, _ := newTestGeneration(staticResolver(), client, &datasource.MockExecutor{}, GenerationOptions{})

	_, err := svc.Chat(context.Background(), ChatRequest{Question: "remove the orders"})
	assert.ErrorIs(t, err, apperrors.ErrQueryRejected)
}

func TestChatRefusesInjectionLiteral(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT * FROM orders WHERE status = '1 OR 1=1 UNION SELECT username, password FROM users --'"), nil
	}
	executor := &datasource.MockExecutor{}
	svc, _ := newTestGeneration(staticResolver(), client, executor, GenerationOptions{})

	_, err := svc.Chat(context.Background(), ChatRequest{Question: "show orders"})
	assert.ErrorIs(t, err, apperrors.ErrQueryRejected)
	assert.Zero(t, executor.QueryCalls)
}

func TestChatReusesCachedResolution(t *testing.T) {
	resolver := staticResolver()
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT * FROM public.orders"), nil
	}
	svc, _ := newTestGeneration(resolver, client, &datasource.MockExecutor{}, GenerationOptions{})

	first, err := svc.Chat(context.Background(), ChatRequest{Question: "show orders"})
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatRequest{SessionID: first.SessionID, Question: "show orders"})
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.ResolveCalls)
}

func TestChatSkipExecution(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT * FROM public.orders"), nil
	}
	executor := &datasource.MockExecutor{}
	svc, _ := newTestGeneration(staticResolver(), client, executor, GenerationOptions{})

	res, err := svc.Chat(context.Background(), ChatRequest{Question: "show orders", SkipExecution: true})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SQL)
	assert.Nil(t, res.Results)
	assert.Zero(t, executor.QueryCalls)
}

func TestChatIncludesPriorTurnsInPrompt(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return fencedSQL("SELECT * FROM public.orders"), nil
	}
	svc, _ := newTestGeneration(staticResolver(), client, &datasource.MockExecutor{}, GenerationOptions{})

	first, err := svc.Chat(context.Background(), ChatRequest{Question: "show orders"})
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatRequest{SessionID: first.SessionID, Question: "only the pending ones"})
	require.NoError(t, err)

	require.Len(t, client.Prompts, 2)
	assert.NotContains(t, client.Prompts[0], "Previous conversation:")
	assert.Contains(t, client.Prompts[1], "Previous conversation:")
	assert.Contains(t, client.Prompts[1], "show orders")
}

func TestChatEmptyQuestion(t *testing.T) {
	svc, _ := newTestGeneration(staticResolver(), llm.NewMockLLMClient(), nil, GenerationOptions{})
	_, err := svc.Chat(context.Background(), ChatRequest{Question: "   "})
	assert.Error(t, err)
}

func TestFixCorrectsReferences(t *testing.T) {
	svc, _ := newTestGeneration(staticResolver(), llm.NewMockLLMClient(), nil, GenerationOptions{})

	res, err := svc.Fix(context.Background(), FixRequest{Question: "order status", SQL: "SELECT sttus FROM ordrs"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT status FROM public.orders", res.CorrectedSQL)
	assert.Len(t, res.Changes, 2)
	assert.Empty(t, res.Issues)
}

func TestFixReportsValidatorFindings(t *testing.T) {
	executor := &datasource.MockExecutor{
		ValidateQueryFunc: func(ctx context.Context, sqlQuery string) error {
			return errors.New("invalid SQL: relation vanished")
		},
	}
	svc, _ := newTestGeneration(staticResolver(), llm.NewMockLLMClient(), executor, GenerationOptions{})

	res, err := svc.Fix(context.Background(), FixRequest{Question: "order status", SQL: "SELECT status FROM public.orders"})
	require.NoError(t, err)

	assert.Equal(t, 1, executor.ValidateQueryCalls)
	require.NotEmpty(t, res.Issues)
	assert.Contains(t, res.Issues[len(res.Issues)-1], "still fails validation")
}

func TestFixReusesLastResolution(t *testing.T) {
	resolver := staticResolver()
	svc, sessions := newTestGeneration(resolver, llm.NewMockLLMClient(), nil, GenerationOptions{})

	sess := sessions.Create()
	sess.SetLastResolution(testResolution())

	res, err := svc.Fix(context.Background(), FixRequest{SessionID: sess.ID, SQL: "SELECT sttus FROM orders"})
	require.NoError(t, err)

	assert.Zero(t, resolver.ResolveCalls)
	assert.Contains(t, res.CorrectedSQL, "status")
	assert.Equal(t, sess.ID, res.SessionID)
}

func TestFixWithoutContextFails(t *testing.T) {
	svc, _ := newTestGeneration(staticResolver(), llm.NewMockLLMClient(), nil, GenerationOptions{})
	_, err := svc.Fix(context.Background(), FixRequest{SQL: "SELECT 1"})
	assert.Error(t, err)
}

func TestFixRejectsNonSelect(t *testing.T) {
	svc, _ := newTestGeneration(staticResolver(), llm.NewMockLLMClient(), nil, GenerationOptions{})
	_, err := svc.Fix(context.Background(), FixRequest{Question: "orders", SQL: "DROP TABLE orders"})
	assert.ErrorIs(t, err, apperrors.ErrQueryRejected)
}

func TestFixReturnsOriginalWhenUnparsable(t *testing.T) {
	svc, _ := newTestGeneration(staticResolver(), llm.NewMockLLMClient(), nil, GenerationOptions{})

	broken := "SELECT * FROM orders WHERE status = 'unterminated"
	res, err := svc.Fix(context.Background(), FixRequest{Question: "orders", SQL: broken})
	require.NoError(t, err)

	assert.Equal(t, broken, res.CorrectedSQL)
	require.NotEmpty(t, res.Issues)
	assert.Contains(t, res.Issues[0], "could not be parsed")
}

func TestFixSuggestsWhenNothingMatches(t *testing.T) {
	resolver := &mockResolver{ResolveFunc: func(ctx context.Context, question string) (*Resolution, error) {
		res := &Resolution{Suggestions: []string{"orders"}}
		return res, fmt.Errorf("nothing matched: %w", apperrors.ErrNoCandidateTables)
	}}
	svc, _ := newTestGeneration(resolver, llm.NewMockLLMClient(), nil, GenerationOptions{})

	res, err := svc.Fix(context.Background(), FixRequest{Question: "flux capacitance", SQL: "SELECT 1"})
	require.NoError(t, err)

	assert.Empty(t, res.CorrectedSQL)
	assert.Equal(t, []string{"orders"}, res.Suggestions)
	assert.NotEmpty(t, res.Issues)
}

func TestRenderConversation(t *testing.T) {
	assert.Empty(t, renderConversation(nil))

	got := renderConversation([]Turn{
		{Question: "show orders", SQL: "SELECT * FROM public.orders"},
		{Question: "which ones are pending?"},
	})
	assert.Contains(t, got, "Previous conversation:")
	assert.Contains(t, got, "Q: show orders")
	assert.Contains(t, got, "SQL: SELECT * FROM public.orders")
	assert.Contains(t, got, "Q: which ones are pending?")
}
