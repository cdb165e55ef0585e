package sql

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/schema"
)

func newTestFixer() *AutoFixer {
	return NewAutoFixer(zap.NewNop())
}

// fixturePool mirrors a small retail schema: orders with a varchar
// status, customers with a varchar legacy code, and order items priced
// per line.
func fixturePool() *schema.SchemaPool {
	pool := schema.NewSchemaPool()
	pool.Add(&schema.TableEntry{
		Name: "public.orders",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "customer_id", DataType: "bigint", IsForeignKey: true, FKReference: &schema.FkRef{Table: "public.customers", Column: "id"}},
			{Name: "total", DataType: "numeric"},
			{Name: "status", DataType: "character varying(20)"},
		},
	})
	pool.Add(&schema.TableEntry{
		Name: "public.customers",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "name", DataType: "text"},
			{Name: "legacy_code", DataType: "character varying(12)"},
		},
	})
	pool.Add(&schema.TableEntry{
		Name: "public.order_items",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "order_id", DataType: "bigint", IsForeignKey: true, FKReference: &schema.FkRef{Table: "public.orders", Column: "id"}},
			{Name: "price", DataType: "numeric"},
		},
	})
	return pool
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func hasSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestFixMisspelledTableAndColumn(t *testing.T) {
	report, err := newTestFixer().Fix("SELECT ordrs.totl FROM ordrs", fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT public.orders.total FROM public.orders"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
	if !hasString(report.Changes, `table "ordrs" -> "public.orders"`) {
		t.Errorf("missing table change, got %v", report.Changes)
	}
	if !hasString(report.Changes, "column ordrs.totl -> public.orders.total") {
		t.Errorf("missing column change, got %v", report.Changes)
	}
	if len(report.Issues) != 0 {
		t.Errorf("unexpected issues: %v", report.Issues)
	}
}

func TestFixRetargetsQualifiedColumn(t *testing.T) {
	input := "SELECT o.price FROM orders o JOIN order_items oi ON oi.order_id = o.id"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT public.order_items.price FROM public.orders o JOIN public.order_items oi ON oi.order_id = o.id"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
	if !hasString(report.Changes, `table reference "o" -> "public.order_items" for column "price"`) {
		t.Errorf("missing reassignment change, got %v", report.Changes)
	}
	if len(report.Issues) != 0 {
		t.Errorf("unexpected issues: %v", report.Issues)
	}
}

func TestFixUnknownTableListsPool(t *testing.T) {
	report, err := newTestFixer().Fix("SELECT name FROM widgetz", fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	if report.CorrectedSQL != "SELECT name FROM widgetz" {
		t.Errorf("corrected SQL = %q, want input unchanged", report.CorrectedSQL)
	}
	wantIssue := `table "widgetz" not found in schema; available tables: public.orders, public.customers, public.order_items`
	if !hasString(report.Issues, wantIssue) {
		t.Errorf("issues = %v, want %q", report.Issues, wantIssue)
	}
	if len(report.Changes) != 0 {
		t.Errorf("unexpected changes: %v", report.Changes)
	}
}

func TestFixSubThresholdColumnLeftAlone(t *testing.T) {
	input := "SELECT o.shipping FROM orders o"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	if report.CorrectedSQL != "SELECT o.shipping FROM public.orders o" {
		t.Errorf("corrected SQL = %q; the unresolved column must stay as written", report.CorrectedSQL)
	}
	if !hasSubstring(report.Issues, "could not resolve column o.shipping") {
		t.Errorf("issues = %v, want unresolved-column entry", report.Issues)
	}
	if hasSubstring(report.Changes, "shipping") {
		t.Errorf("sub-threshold column must never be rewritten, got %v", report.Changes)
	}
}

func TestFixAmbiguousColumnReported(t *testing.T) {
	pool := fixturePool()
	pool.Add(&schema.TableEntry{
		Name: "public.shipments",
		Columns: []schema.ColumnMeta{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "price", DataType: "numeric"},
		},
	})

	report, err := newTestFixer().Fix("SELECT o.price FROM orders o", pool)
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	if report.CorrectedSQL != "SELECT o.price FROM public.orders o" {
		t.Errorf("corrected SQL = %q; ambiguous column must not be retargeted", report.CorrectedSQL)
	}
	wantIssue := `column "price" is ambiguous: present on public.order_items, public.shipments`
	if !hasString(report.Issues, wantIssue) {
		t.Errorf("issues = %v, want %q", report.Issues, wantIssue)
	}
}

func TestFixCastsMismatchedJoinKeys(t *testing.T) {
	input := "SELECT c.name FROM customers c JOIN orders o ON c.legacy_code = o.id"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT c.name FROM public.customers c JOIN public.orders o ON c.legacy_code::TEXT = o.id::TEXT"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
	if !hasString(report.Changes, "type cast: c.legacy_code -> c.legacy_code::TEXT") {
		t.Errorf("missing char-side cast change, got %v", report.Changes)
	}
	if !hasString(report.Changes, "type cast: o.id -> o.id::TEXT") {
		t.Errorf("missing numeric-side cast change, got %v", report.Changes)
	}
}

func TestFixCastsCharColumnAgainstNumericLiteral(t *testing.T) {
	report, err := newTestFixer().Fix("SELECT id FROM orders WHERE status = 7", fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT id FROM public.orders WHERE status::TEXT = 7"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
}

func TestFixLeavesMatchingFamiliesAlone(t *testing.T) {
	input := "SELECT oi.id FROM order_items oi JOIN orders o ON oi.order_id = o.id"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	if strings.Contains(report.CorrectedSQL, "::TEXT") {
		t.Errorf("matching key families must not be cast, got %q", report.CorrectedSQL)
	}
	if hasSubstring(report.Changes, "type cast") {
		t.Errorf("unexpected cast changes: %v", report.Changes)
	}
}

func TestFixIsIdempotent(t *testing.T) {
	inputs := []string{
		"SELECT ordrs.totl FROM ordrs",
		"SELECT c.name FROM customers c JOIN orders o ON c.legacy_code = o.id",
		"SELECT o.total FROM orders AS o WHERE o.total > 100",
	}

	fixer := newTestFixer()
	for _, input := range inputs {
		first, err := fixer.Fix(input, fixturePool())
		if err != nil {
			t.Fatalf("Fix(%q) returned error: %v", input, err)
		}
		second, err := fixer.Fix(first.CorrectedSQL, fixturePool())
		if err != nil {
			t.Fatalf("second Fix(%q) returned error: %v", first.CorrectedSQL, err)
		}
		if second.CorrectedSQL != first.CorrectedSQL {
			t.Errorf("not idempotent for %q:\n first: %q\nsecond: %q", input, first.CorrectedSQL, second.CorrectedSQL)
		}
		if len(second.Changes) != 0 {
			t.Errorf("second pass over %q still reports changes: %v", input, second.Changes)
		}
	}
}

func TestFixNormalizesCase(t *testing.T) {
	report, err := newTestFixer().Fix("SELECT Total FROM PUBLIC.ORDERS", fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT total FROM public.orders"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
}

func TestFixCommaSeparatedFromClause(t *testing.T) {
	input := "SELECT orders.total, customers.name FROM orders, customers"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT public.orders.total, public.customers.name FROM public.orders, public.customers"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
}

func TestFixMalformedInputReturnsOriginal(t *testing.T) {
	input := "SELECT 'oops FROM orders"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err == nil {
		t.Fatal("Fix = nil error, want malformed input")
	}
	if !errors.Is(err, apperrors.ErrMalformedInput) {
		t.Errorf("error %v does not wrap ErrMalformedInput", err)
	}
	if report.CorrectedSQL != input {
		t.Errorf("corrected SQL = %q, want original input", report.CorrectedSQL)
	}
	if !hasSubstring(report.Issues, "could not parse statement") {
		t.Errorf("issues = %v, want parse failure entry", report.Issues)
	}
}

func TestFixEmptyPool(t *testing.T) {
	report, err := newTestFixer().Fix("SELECT 1", schema.NewSchemaPool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}
	if report.CorrectedSQL != "SELECT 1" {
		t.Errorf("corrected SQL = %q, want input unchanged", report.CorrectedSQL)
	}
	if len(report.Changes) != 0 || len(report.Issues) != 0 {
		t.Errorf("empty pool must not produce changes (%v) or issues (%v)", report.Changes, report.Issues)
	}
}

func TestFixSkipsFunctionNamesAndAliases(t *testing.T) {
	input := "SELECT COUNT(id) AS order_count FROM orders GROUP BY status ORDER BY order_count"
	report, err := newTestFixer().Fix(input, fixturePool())
	if err != nil {
		t.Fatalf("Fix returned error: %v", err)
	}

	want := "SELECT COUNT(id) AS order_count FROM public.orders GROUP BY status ORDER BY order_count"
	if report.CorrectedSQL != want {
		t.Errorf("corrected SQL = %q, want %q", report.CorrectedSQL, want)
	}
	if len(report.Issues) != 0 {
		t.Errorf("function name or output alias misread as column: %v", report.Issues)
	}
}
