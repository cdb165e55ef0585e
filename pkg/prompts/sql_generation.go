package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/sqlmend/pkg/schema"
	"github.com/ekaya-inc/sqlmend/pkg/search"
)

// GenerationSystemPrompt carries the static generation rules. It never
// changes between requests, so provider-side prompt caching can reuse it.
const GenerationSystemPrompt = `You are a SQL generation engine for a relational database.

RULES:
1. Output exactly one SQL statement and nothing else. No explanations, no comments, no markdown outside the sql fence.
2. The statement must be a single SELECT. Never write INSERT, UPDATE, DELETE, DDL, or multiple statements.
3. Use ONLY the tables and columns listed in the ALLOWED TABLES section. Every column you reference must appear under the table you take it from.
4. If no columns are named by the question, use SELECT *.
5. If the question has no filter condition, do not invent a WHERE clause.
6. If all requested columns live in one table, do not JOIN.
7. When a JOIN is required, copy the SQL: line from the CHAINED JOIN PATHS section verbatim, including any ::TEXT casts.`

// BuildSchemaContext renders the compact schema view the model is
// allowed to use. The output is deterministic: pool order for tables,
// ranked order for columns, sorted keys for paths. Glossary keywords
// are woven in as inline descriptions so the model can map domain
// vocabulary onto physical names.
func BuildSchemaContext(result *schema.BuildResult, glossary search.KeywordGlossary) string {
	var b strings.Builder

	b.WriteString("=== ALLOWED TABLES AND COLUMNS - USE ONLY THESE TABLE.COLUMN PAIRS ===\n")
	b.WriteString("=== TABLE STRUCTURES BELOW ARE IN CREATE TABLE-LIKE FORM ===\n")
	b.WriteString("=== EVERY COLUMN YOU SELECT MUST BELONG TO THE TABLE YOU TAKE IT FROM ===\n\n")

	for _, table := range result.Pool.Tables {
		entry := result.Pool.Get(table)
		if entry == nil {
			continue
		}
		writeTableBlock(&b, entry, glossary)
	}

	b.WriteString("=== CHAINED JOIN PATHS ===\n")
	b.WriteString("(Each path shows column types and a ready SQL example - if you JOIN, copy the SQL: line verbatim.)\n\n")

	if !writePathSection(&b, result) {
		writeFallbackRelationships(&b, result.Pool)
	}

	return b.String()
}

func writeTableBlock(b *strings.Builder, entry *schema.TableEntry, glossary search.KeywordGlossary) {
	desc := ""
	if kws := tableKeywords(glossary, entry.Name); len(kws) > 0 {
		desc = "  -- " + strings.Join(kws, ", ")
	}
	fmt.Fprintf(b, "%s (%s\n", entry.Name, desc)

	for _, col := range entry.Columns {
		label := ""
		switch {
		case col.IsPrimaryKey && col.AssumedPrimaryKey:
			label = " -- PK (assumed)"
		case col.IsPrimaryKey:
			label = " -- PK"
		case col.IsForeignKey && col.FKReference != nil:
			label = fmt.Sprintf(" -- FK -> %s.%s", col.FKReference.Table, col.FKReference.Column)
		case col.IsForeignKey:
			label = " -- FK"
		}
		if kws := columnKeywords(glossary, entry.Name, col.Name); len(kws) > 0 {
			label += " (" + strings.Join(kws, ", ") + ")"
		}
		fmt.Fprintf(b, "    %s %s%s\n", col.Name, col.DataType, label)
	}
	b.WriteString(")\n\n")
}

// writePathSection renders every join path whose tables are all in the
// pool. It reports whether anything was written.
func writePathSection(b *strings.Builder, result *schema.BuildResult) bool {
	keys := make([]string, 0, len(result.Paths))
	for k := range result.Paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	printed := make(map[string]bool)
	wrote := false
	for _, key := range keys {
		path := result.Paths[key]
		if !pathFullyPooled(path, result.Pool) {
			continue
		}

		chainParts := make([]string, 0, len(path.Hops))
		joinLines := make([]string, 0, len(path.Hops))
		for _, hop := range path.Hops {
			fromType := columnType(result.Pool, hop.FromTable, hop.FromColumn)
			toType := columnType(result.Pool, hop.ToTable, hop.ToColumn)
			chainParts = append(chainParts, fmt.Sprintf("%s.%s (%s) --> %s.%s (%s)",
				hop.FromTable, hop.FromColumn, fromType, hop.ToTable, hop.ToColumn, toType))
			joinLines = append(joinLines, joinClause(hop, fromType, toType))
		}

		chain := strings.Join(chainParts, " --> ")
		if printed[chain] {
			continue
		}
		printed[chain] = true

		fmt.Fprintf(b, "- %s\n", chain)
		b.WriteString("  SQL:\n")
		for _, line := range joinLines {
			fmt.Fprintf(b, "    %s\n", line)
		}
		b.WriteString("\n")
		wrote = true
	}
	return wrote
}

// writeFallbackRelationships lists direct FK relationships from the
// pool when no multi-table path was discovered, so single JOINs remain
// possible.
func writeFallbackRelationships(b *strings.Builder, pool *schema.SchemaPool) {
	var rels []string
	for _, table := range pool.Tables {
		entry := pool.Get(table)
		if entry == nil {
			continue
		}
		for _, col := range entry.Columns {
			if !col.IsForeignKey || col.FKReference == nil {
				continue
			}
			ref := col.FKReference
			refEntry := pool.Get(ref.Table)
			if refEntry == nil {
				continue
			}
			fromType := col.DataType
			toType := columnType(pool, ref.Table, ref.Column)
			hop := schema.FkEdge{FromTable: table, FromColumn: col.Name, ToTable: ref.Table, ToColumn: ref.Column}
			rels = append(rels, fmt.Sprintf("- %s.%s (%s) --> %s.%s (%s)\n  SQL:\n    %s\n",
				table, col.Name, fromType, ref.Table, ref.Column, toType, joinClause(hop, fromType, toType)))
		}
	}
	if len(rels) == 0 {
		b.WriteString("- (no join relationships between the listed tables; query them independently)\n\n")
		return
	}
	sort.Strings(rels)
	for _, r := range rels {
		b.WriteString(r)
		b.WriteString("\n")
	}
}

// joinClause builds the ready-to-copy JOIN line, casting both sides to
// text when one side is numeric and the other character-typed.
func joinClause(hop schema.FkEdge, fromType, toType string) string {
	mismatch := (schema.IsNumericType(fromType) && schema.IsCharType(toType)) ||
		(schema.IsCharType(fromType) && schema.IsNumericType(toType))
	if mismatch {
		return fmt.Sprintf("JOIN %s ON %s.%s::TEXT = %s.%s::TEXT",
			hop.ToTable, hop.FromTable, hop.FromColumn, hop.ToTable, hop.ToColumn)
	}
	return fmt.Sprintf("JOIN %s ON %s.%s = %s.%s",
		hop.ToTable, hop.FromTable, hop.FromColumn, hop.ToTable, hop.ToColumn)
}

// BuildValueHints renders known literal values for pooled columns. The
// section only appears when the question actually filters on something;
// otherwise value hints bait the model into inventing WHERE clauses.
func BuildValueHints(values schema.ValueContext, userQuery string) string {
	if len(values) == 0 || !needsExplicitFiltering(userQuery) {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("=== KNOWN DATA VALUES (USE ONLY IF THE QUESTION FILTERS ON THEM) ===\n")
	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		shown := vals
		if len(shown) > 2 {
			shown = shown[:2]
		}
		quoted := make([]string, len(shown))
		for i, v := range shown {
			quoted[i] = "'" + v + "'"
		}
		fmt.Fprintf(&b, "- %s: %s", key, strings.Join(quoted, ", "))
		if len(vals) > len(shown) {
			fmt.Fprintf(&b, " ... (%d values total)", len(vals))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// BuildGenerationPrompt assembles the per-request prompt body.
func BuildGenerationPrompt(userQuery, schemaContext, valueHints, conversationContext string) string {
	var b strings.Builder
	if conversationContext != "" {
		b.WriteString(conversationContext)
		b.WriteString("\n")
	}
	b.WriteString(schemaContext)
	b.WriteString("\n")
	if valueHints != "" {
		b.WriteString(valueHints)
	}
	b.WriteString("REMINDERS:\n")
	b.WriteString("1. No columns named in the question -> SELECT *\n")
	b.WriteString("2. No filter in the question -> no WHERE clause\n")
	b.WriteString("3. All requested columns in one table -> no JOIN\n\n")
	fmt.Fprintf(&b, "USER QUESTION: %q\n\n", userQuery)
	b.WriteString("Write only the SQL statement.\n\nSQL:\n```sql\n")
	return b.String()
}

// BuildRepairPrompt asks the model to retry after the fixer or executor
// rejected its previous attempt, feeding back exactly what went wrong.
func BuildRepairPrompt(userQuery, schemaContext, failedSQL string, problems []string) string {
	var b strings.Builder
	b.WriteString(schemaContext)
	b.WriteString("\nYour previous SQL attempt failed.\n\n")
	fmt.Fprintf(&b, "ATTEMPT:\n```sql\n%s\n```\n\nPROBLEMS:\n", failedSQL)
	for _, p := range problems {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	fmt.Fprintf(&b, "\nUSER QUESTION: %q\n\n", userQuery)
	b.WriteString("Write a corrected SQL statement that avoids every problem above. Output only the SQL.\n\nSQL:\n```sql\n")
	return b.String()
}

// needsExplicitFiltering reports whether the question contains filter
// language or literal values worth hinting about.
func needsExplicitFiltering(userQuery string) bool {
	lower := strings.ToLower(userQuery)
	indicators := []string{
		"filter", "only", "where", "which", "find", "show", "list",
		"how many", "greater", "less", "equal", "between", "before",
		"after", "active", "inactive", "named", "called", "with",
	}
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	for _, r := range userQuery {
		switch {
		case r >= '0' && r <= '9':
			return true
		case r == '"' || r == '\'' || r == '=' || r == '>' || r == '<':
			return true
		}
	}
	return false
}

func tableKeywords(glossary search.KeywordGlossary, table string) []string {
	entry, ok := glossaryEntry(glossary, table)
	if !ok || len(entry.TableKeywords) == 0 {
		return nil
	}
	kws := entry.TableKeywords
	if len(kws) > 3 {
		kws = kws[:3]
	}
	return kws
}

func columnKeywords(glossary search.KeywordGlossary, table, column string) []string {
	entry, ok := glossaryEntry(glossary, table)
	if !ok {
		return nil
	}
	kws, ok := entry.ColumnKeywords[column]
	if !ok || len(kws) == 0 {
		return nil
	}
	if len(kws) > 2 {
		kws = kws[:2]
	}
	return kws
}

// glossaryEntry looks a table up by qualified name first, bare name
// second; glossaries are usually written without schema prefixes.
func glossaryEntry(glossary search.KeywordGlossary, table string) (search.TableKeywords, bool) {
	if entry, ok := glossary[table]; ok {
		return entry, true
	}
	entry, ok := glossary[schema.StripSchemaPrefix(table)]
	return entry, ok
}

func pathFullyPooled(path schema.JoinPath, pool *schema.SchemaPool) bool {
	for _, t := range path.Tables() {
		if pool.Get(t) == nil {
			return false
		}
	}
	return true
}

func columnType(pool *schema.SchemaPool, table, column string) string {
	entry := pool.Get(table)
	if entry == nil {
		return "UNKNOWN"
	}
	col := entry.Column(column)
	if col == nil {
		return "UNKNOWN"
	}
	return col.DataType
}
