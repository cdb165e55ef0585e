package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sqlmend/pkg/schema"
	"github.com/ekaya-inc/sqlmend/pkg/search"
)

func fkRef(table, column string) *schema.FkRef {
	return &schema.FkRef{Table: table, Column: column}
}

func testBuildResult() *schema.BuildResult {
	pool := schema.NewSchemaPool()
	pool.Add(&schema.TableEntry{
		Name: "public.orders",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "customer_id", DataType: "bigint", IsForeignKey: true, FKReference: fkRef("public.customers", "id")},
			{Name: "total", DataType: "numeric", RelevanceScore: 0.9},
		},
	})
	pool.Add(&schema.TableEntry{
		Name: "public.customers",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "email", DataType: "text"},
		},
	})

	paths := map[string]schema.JoinPath{
		"public.orders-public.customers-0": {Hops: []schema.FkEdge{{
			FromTable: "public.orders", FromColumn: "customer_id",
			ToTable: "public.customers", ToColumn: "id",
		}}},
	}
	return &schema.BuildResult{Pool: pool, Paths: paths, Values: make(schema.ValueContext)}
}

func TestBuildSchemaContext_TableBlocks(t *testing.T) {
	glossary := search.KeywordGlossary{
		"orders": {
			TableKeywords:  []string{"order", "purchase"},
			ColumnKeywords: map[string][]string{"total": {"amount"}},
		},
	}

	out := BuildSchemaContext(testBuildResult(), glossary)

	assert.Contains(t, out, "public.orders (")
	assert.Contains(t, out, "id bigint -- PK")
	assert.Contains(t, out, "customer_id bigint -- FK -> public.customers.id")
	assert.Contains(t, out, "total numeric")
	// Glossary keywords woven in as descriptions.
	assert.Contains(t, out, "-- order, purchase")
	assert.Contains(t, out, "(amount)")
}

func TestBuildSchemaContext_JoinPathWithReadySQL(t *testing.T) {
	out := BuildSchemaContext(testBuildResult(), nil)

	assert.Contains(t, out, "CHAINED JOIN PATHS")
	assert.Contains(t, out, "public.orders.customer_id (bigint) --> public.customers.id (bigint)")
	assert.Contains(t, out, "JOIN public.customers ON public.orders.customer_id = public.customers.id")
	assert.NotContains(t, out, "::TEXT", "matching types must not be cast")
}

func TestBuildSchemaContext_CastsMismatchedJoinTypes(t *testing.T) {
	result := testBuildResult()
	// Make the FK side character-typed while the PK stays numeric.
	result.Pool.Get("public.orders").Columns[1].DataType = "character varying"

	out := BuildSchemaContext(result, nil)
	assert.Contains(t, out, "JOIN public.customers ON public.orders.customer_id::TEXT = public.customers.id::TEXT")
}

func TestBuildSchemaContext_AssumedKeyLabeled(t *testing.T) {
	result := testBuildResult()
	result.Pool.Get("public.customers").Columns[0].AssumedPrimaryKey = true

	out := BuildSchemaContext(result, nil)
	assert.Contains(t, out, "-- PK (assumed)")
}

func TestBuildSchemaContext_FallbackRelationshipList(t *testing.T) {
	result := testBuildResult()
	result.Paths = nil

	out := BuildSchemaContext(result, nil)
	// No discovered chain, but the direct FK is still shown with SQL.
	assert.Contains(t, out, "JOIN public.customers ON public.orders.customer_id = public.customers.id")
}

func TestBuildSchemaContext_SkipsPathsWithUnpooledTables(t *testing.T) {
	result := testBuildResult()
	result.Paths["public.orders-public.ghosts-0"] = schema.JoinPath{Hops: []schema.FkEdge{{
		FromTable: "public.orders", FromColumn: "ghost_id",
		ToTable: "public.ghosts", ToColumn: "id",
	}}}

	out := BuildSchemaContext(result, nil)
	assert.NotContains(t, out, "ghosts")
}

func TestBuildSchemaContext_Deterministic(t *testing.T) {
	result := testBuildResult()
	first := BuildSchemaContext(result, nil)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, BuildSchemaContext(result, nil))
	}
}

func TestBuildValueHints(t *testing.T) {
	values := schema.ValueContext{
		"public.orders.status": {"shipped", "pending", "cancelled"},
	}

	out := BuildValueHints(values, "show orders with status shipped")
	assert.Contains(t, out, "public.orders.status: 'shipped', 'pending'")
	assert.Contains(t, out, "(3 values total)")
	assert.NotContains(t, out, "cancelled", "only the first two values are shown")

	// A question without filter language gets no value bait.
	assert.Empty(t, BuildValueHints(values, "total revenue per region"))
	assert.Empty(t, BuildValueHints(nil, "show orders with status shipped"))
}

func TestBuildGenerationPrompt(t *testing.T) {
	out := BuildGenerationPrompt("top customers by revenue", "SCHEMA-BLOCK", "", "")

	assert.Contains(t, out, "SCHEMA-BLOCK")
	assert.Contains(t, out, `USER QUESTION: "top customers by revenue"`)
	assert.True(t, strings.HasSuffix(out, "```sql\n"), "prompt must end with an open sql fence")
	assert.Contains(t, out, "SELECT *")
}

func TestBuildGenerationPrompt_IncludesConversationContext(t *testing.T) {
	out := BuildGenerationPrompt("and only for 2024", "SCHEMA-BLOCK", "", "PREVIOUS TURNS")
	assert.Less(t, strings.Index(out, "PREVIOUS TURNS"), strings.Index(out, "SCHEMA-BLOCK"))
}

func TestBuildRepairPrompt(t *testing.T) {
	problems := []string{
		`unresolved table "widgetz"`,
		`column "totl" not found`,
	}
	out := BuildRepairPrompt("order totals", "SCHEMA-BLOCK", "SELECT totl FROM widgetz", problems)

	assert.Contains(t, out, "SELECT totl FROM widgetz")
	for _, p := range problems {
		assert.Contains(t, out, p)
	}
	assert.Contains(t, out, "SCHEMA-BLOCK")
	assert.True(t, strings.HasSuffix(out, "```sql\n"))
}
